package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI transcribes audio files through the OpenAI audio API.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAI(apiKey, model, language string) *OpenAI {
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	return &OpenAI{
		client:   openai.NewClient(apiKey),
		model:    model,
		language: language,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, filePath string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: filePath,
		Language: o.language,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return resp.Text, nil
}
