// Package transcribe turns finished recordings into text via a cloud
// backend, packaged as background task work units. Constructed backend
// clients are expensive to warm up and are reused through the resource
// cache.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hark/internal/cache"
	"hark/internal/task"
)

// Backend converts an audio file into text.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, filePath string) (string, error)
}

// Result is the terminal payload of a transcription task.
type Result struct {
	Backend  string  `json:"backend"`
	Model    string  `json:"model"`
	File     string  `json:"file"`
	Text     string  `json:"text"`
	Duration float64 `json:"duration_seconds"`
}

// Request shapes a task.submit transcription job.
type Request struct {
	File     string `json:"file"`
	Backend  string `json:"backend,omitempty"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

// Config carries backend credentials and defaults.
type Config struct {
	OpenAIKey       string
	DeepgramKey     string
	DefaultBackend  string
	DefaultModel    map[string]string
	DefaultLanguage string
}

// ErrNoBackend is returned when the requested backend is unknown or has
// no credentials configured.
var ErrNoBackend = errors.New("no usable transcription backend")

// backendHandleSize is the nominal cache weight of a warmed client.
const backendHandleSize = 1 << 20

// Service builds transcription work units.
type Service struct {
	cfg    Config
	models *cache.Cache
	log    zerolog.Logger
}

func NewService(cfg Config, models *cache.Cache, logger zerolog.Logger) *Service {
	if cfg.DefaultBackend == "" {
		cfg.DefaultBackend = "openai"
	}
	return &Service{cfg: cfg, models: models, log: logger}
}

// Work validates the request and returns a task work unit. Validation
// failures surface here, before a task is created.
func (s *Service) Work(req Request) (task.Work, error) {
	file := strings.TrimSpace(req.File)
	if file == "" {
		return nil, errors.New("transcribe: file is required")
	}
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	name := req.Backend
	if name == "" {
		name = s.cfg.DefaultBackend
	}
	model := req.Model
	if model == "" {
		model = s.cfg.DefaultModel[name]
	}
	language := req.Language
	if language == "" {
		language = s.cfg.DefaultLanguage
	}

	return func(ctx context.Context, report func(float64)) (any, error) {
		backend, err := s.backend(name, model, language)
		if err != nil {
			return nil, err
		}
		report(0.1)

		started := time.Now()
		text, err := backend.Transcribe(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("transcribe %s: %w", file, err)
		}
		report(1)

		return Result{
			Backend:  backend.Name(),
			Model:    model,
			File:     file,
			Text:     text,
			Duration: time.Since(started).Seconds(),
		}, nil
	}, nil
}

// backend returns a warmed client for the backend/model pair, reusing a
// cached handle when one is live.
func (s *Service) backend(name, model, language string) (Backend, error) {
	key := "transcriber/" + name + "/" + model + "/" + language
	if s.models != nil {
		if cached, ok := s.models.Get(key); ok {
			if b, ok := cached.(Backend); ok {
				return b, nil
			}
		}
	}

	var backend Backend
	switch name {
	case "openai":
		if s.cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai key not configured: %w", ErrNoBackend)
		}
		backend = NewOpenAI(s.cfg.OpenAIKey, model, language)
	case "deepgram":
		if s.cfg.DeepgramKey == "" {
			return nil, fmt.Errorf("deepgram key not configured: %w", ErrNoBackend)
		}
		backend = NewDeepgram(s.cfg.DeepgramKey, model, language)
	default:
		return nil, fmt.Errorf("unknown backend %q: %w", name, ErrNoBackend)
	}

	if s.models != nil {
		if err := s.models.Put(key, backend, backendHandleSize, 0); err != nil {
			s.log.Debug().
				Str("component", "transcribe").
				Str("key", key).
				Err(err).
				Msg("backend handle not cached")
		}
	}
	return backend, nil
}
