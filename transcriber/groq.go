package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"voxchat/audio"
	"voxchat/encoder"
	"voxchat/internal/nettrace"
	"voxchat/log"
)

const (
	groqURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	groqModel = "whisper-large-v3-turbo"
)

// Groq uploads the recording as FLAC to an OpenAI-compatible
// transcription endpoint. Decoding there uses temperature 0.
type Groq struct {
	client *nettrace.Client
	apiURL string
	apiKey string
	model  string
}

func NewGroq(apiKey, apiURL, model string) *Groq {
	if apiURL == "" {
		apiURL = groqURL
	}
	if model == "" {
		model = groqModel
	}
	return &Groq{
		client: nettrace.NewClient(60 * time.Second),
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
	}
}

// GroqLoader treats the model path as the remote model name.
func GroqLoader(apiKey, apiURL string) Loader {
	return func(model string) (Engine, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("groq: no API key configured")
		}
		return NewGroq(apiKey, apiURL, model), nil
	}
}

func (g *Groq) Name() string { return "groq" }
func (g *Groq) Close() error { return nil }

type groqResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

func (g *Groq) Transcribe(ctx context.Context, samples []float32, language string) ([]Segment, error) {
	flacData, stats, err := encoder.FLAC(audio.Float32ToInt16(samples))
	if err != nil {
		return nil, fmt.Errorf("encoding flac: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(flacData); err != nil {
		return nil, err
	}

	writer.WriteField("model", g.model)
	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("temperature", "0")
	if language != "" {
		writer.WriteField("language", language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, &body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	log.Debugf("groq: %s, %s", resp.Metrics, stats)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	if len(gResp.Segments) == 0 {
		if gResp.Text == "" {
			return nil, nil
		}
		return []Segment{{Text: gResp.Text}}, nil
	}
	segments := make([]Segment, 0, len(gResp.Segments))
	for _, seg := range gResp.Segments {
		segments = append(segments, Segment{
			Text:  seg.Text,
			Start: time.Duration(seg.Start * float64(time.Second)),
			End:   time.Duration(seg.End * float64(time.Second)),
		})
	}
	return segments, nil
}
