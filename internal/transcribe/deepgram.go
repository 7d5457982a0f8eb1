package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// Deepgram transcribes audio files through the Deepgram prerecorded
// REST API.
type Deepgram struct {
	client   *listenv1rest.Client
	model    string
	language string
}

func NewDeepgram(apiKey, model, language string) *Deepgram {
	if strings.TrimSpace(model) == "" {
		model = "nova-2"
	}
	rest := listen.NewREST(apiKey, &interfaces.ClientOptions{})
	return &Deepgram{
		client:   listenv1rest.New(rest),
		model:    model,
		language: language,
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Transcribe(ctx context.Context, filePath string) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		Punctuate:   true,
		SmartFormat: true,
	}

	resp, err := d.client.FromFile(ctx, filePath, options)
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}

	channels := resp.Results.Channels
	if len(channels) == 0 || len(channels[0].Alternatives) == 0 {
		return "", errors.New("deepgram transcription: empty result")
	}
	return channels[0].Alternatives[0].Transcript, nil
}
