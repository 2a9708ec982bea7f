// Package config loads and saves the voxchat settings file.
//
// The file is TOML by default; a .yaml or .yml extension switches to YAML.
// Environment variables in the file (${OPENAI_API_KEY}) are expanded on
// load. Save always rewrites the whole file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFile = "voxchat.toml"

	// VoiceProvider is the provider entry whose key drives text-to-speech.
	VoiceProvider = "Elevenlabs"
	// GroqProvider holds the key for remote transcription.
	GroqProvider = "Groq"

	MinFontSize = 8
	MaxFontSize = 32
)

var Languages = []string{"EN", "PL", "DE", "CN", "FR", "IT", "ES", "PT", "RU", "UA", "JP", "TR"}

var Themes = []string{"dark", "light"}

type Provider struct {
	Name  string `toml:"name" yaml:"name" validate:"required"`
	Key   string `toml:"key" yaml:"key"`
	URL   string `toml:"url" yaml:"url" validate:"omitempty,url"`
	Model string `toml:"model" yaml:"model"`
}

type Config struct {
	AIChats       map[string]Provider `toml:"ai_chats" yaml:"ai_chats" validate:"dive"`
	SelChat       string              `toml:"sel_chat" yaml:"sel_chat"`
	Width         float32             `toml:"width" yaml:"width" validate:"gte=0"`
	Height        float32             `toml:"height" yaml:"height" validate:"gte=0"`
	FontSize      float32             `toml:"font_size" yaml:"font_size" validate:"gte=8,lte=32"`
	RecDevice     string              `toml:"rec_device" yaml:"rec_device"`
	Theme         string              `toml:"theme" yaml:"theme" validate:"omitempty,oneof=dark light"`
	TrModel       string              `toml:"tr_model" yaml:"tr_model"`
	TrLang        string              `toml:"tr_lang" yaml:"tr_lang" validate:"omitempty,oneof=EN PL DE CN FR IT ES PT RU UA JP TR"`
	TrBackend     string              `toml:"tr_backend" yaml:"tr_backend" validate:"omitempty,oneof=whisper groq"`
	PromptContext string              `toml:"prompt_context" yaml:"prompt_context"`
	Voices        map[string]string   `toml:"voices" yaml:"voices"`

	path string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPath returns voxchat.toml under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultFile
	}
	return filepath.Join(dir, "voxchat", DefaultFile)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal([]byte(expanded), &cfg)
	} else {
		_, err = toml.Decode(expanded, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (c *Config) setDefaults() {
	if c.AIChats == nil {
		c.AIChats = map[string]Provider{}
	}
	if c.Voices == nil {
		c.Voices = map[string]string{}
	}
	if c.Width == 0 {
		c.Width = 1024
	}
	if c.Height == 0 {
		c.Height = 768
	}
	if c.FontSize == 0 {
		c.FontSize = 16
	}
	if c.Theme == "" {
		c.Theme = "dark"
	}
	if c.TrLang == "" {
		c.TrLang = "EN"
	}
	if c.TrBackend == "" {
		c.TrBackend = "whisper"
	}
	// Entries written by hand often leave the name out; the map key is
	// the name.
	for key, p := range c.AIChats {
		if p.Name == "" {
			p.Name = key
			c.AIChats[key] = p
		}
	}
}

// Validate checks field ranges and that sel_chat names a known provider.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s %s", e.Namespace(), formatValidationMessage(e)))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.SelChat != "" {
		if _, ok := c.AIChats[c.SelChat]; !ok {
			return fmt.Errorf("invalid config: sel_chat %q is not in ai_chats", c.SelChat)
		}
	}
	return nil
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// Path is the file the config was loaded from and will be saved to.
func (c *Config) Path() string { return c.path }

func (c *Config) SetPath(path string) { c.path = path }

// Save overwrites the config file with the current settings.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no file path")
	}
	var buf bytes.Buffer
	if isYAML(c.path) {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		enc.Close()
	} else if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(c.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ProviderNames returns the configured provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.AIChats))
	for name := range c.AIChats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Active returns the selected chat provider.
func (c *Config) Active() (Provider, bool) {
	p, ok := c.AIChats[c.SelChat]
	return p, ok
}

// UpdateActive replaces the key, URL and model of the selected provider.
func (c *Config) UpdateActive(key, url, model string) bool {
	p, ok := c.AIChats[c.SelChat]
	if !ok {
		return false
	}
	p.Key, p.URL, p.Model = key, url, model
	c.AIChats[c.SelChat] = p
	return true
}

// Voice returns the TTS key and voice id. The voice provider's model
// field names the entry in voices to use.
func (c *Config) Voice() (key, voiceID string, ok bool) {
	p, found := c.AIChats[VoiceProvider]
	if !found {
		return "", "", false
	}
	return p.Key, c.Voices[p.Model], true
}

// GroqKey returns the remote transcription key, falling back to
// GROQ_API_KEY.
func (c *Config) GroqKey() string {
	if p, ok := c.AIChats[GroqProvider]; ok && p.Key != "" {
		return p.Key
	}
	return os.Getenv("GROQ_API_KEY")
}

// ClampFontSize keeps size within the supported range.
func ClampFontSize(size float32) float32 {
	return max(MinFontSize, min(MaxFontSize, size))
}
