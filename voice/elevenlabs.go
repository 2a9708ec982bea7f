package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"voxchat/audio"
	"voxchat/internal/nettrace"
	"voxchat/log"
)

const (
	elevenLabsURL   = "https://api.elevenlabs.io"
	elevenLabsModel = "eleven_multilingual_v2"
	// pcmRate matches the pcm_22050 output format.
	pcmRate = 22050
)

// Synthesizer turns text into mono S16 PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, key, voiceID, text string) (samples []int16, sampleRate int, err error)
}

type ElevenLabs struct {
	client  *nettrace.Client
	baseURL string
	model   string
}

func NewElevenLabs(baseURL string) *ElevenLabs {
	if baseURL == "" {
		baseURL = elevenLabsURL
	}
	return &ElevenLabs{
		client:  nettrace.NewClient(60 * time.Second),
		baseURL: baseURL,
		model:   elevenLabsModel,
	}
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, key, voiceID, text string) ([]int16, int, error) {
	body, err := json.Marshal(ttsRequest{Text: text, ModelID: e.model})
	if err != nil {
		return nil, 0, err
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_%d", e.baseURL, url.PathEscape(voiceID), pcmRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("xi-api-key", key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs request: %w", err)
	}
	log.Debugf("elevenlabs: %s, %d bytes", resp.Metrics, len(resp.Body))

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("elevenlabs API error %d: %s", resp.StatusCode, string(resp.Body))
	}
	return audio.BytesToInt16(resp.Body), pcmRate, nil
}
