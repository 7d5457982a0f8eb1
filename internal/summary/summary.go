// Package summary condenses finished transcripts into markdown notes
// through the OpenAI chat API, packaged as background task work units.
package summary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"hark/internal/task"
)

const systemPrompt = "Summarize the following recording transcript concisely in markdown. " +
	"Include key topics, decisions made, and action items if any."

// minWords below which a transcript is returned unsummarized.
const minWords = 20

// Summarizer wraps an OpenAI chat client with retry/backoff.
type Summarizer struct {
	client *openai.Client
	model  string
	sleep  func(time.Duration)
}

func NewSummarizer(apiKey, model string) *Summarizer {
	config := openai.DefaultConfig(apiKey)
	return NewSummarizerWithConfig(config, model)
}

func NewSummarizerWithConfig(config openai.ClientConfig, model string) *Summarizer {
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &Summarizer{
		client: openai.NewClientWithConfig(config),
		model:  model,
		sleep:  time.Sleep,
	}
}

// Summarize returns a markdown summary of the transcript. Transcripts
// too short to summarize come back empty without an API call.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if len(strings.Fields(transcript)) < minWords {
		return "", nil
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := 0; attempt < len(backoff); attempt++ {
		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", errors.New("summarize: empty completion")
			}
			return strings.TrimSpace(resp.Choices[0].Message.Content), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.sleep(backoff[attempt])
	}
	return "", fmt.Errorf("summarize after retries: %w", lastErr)
}

// Request shapes a task.submit summarize job: either inline text or a
// transcript file.
type Request struct {
	Text string `json:"text,omitempty"`
	File string `json:"file,omitempty"`
}

// Result is the terminal payload of a summarize task.
type Result struct {
	Model   string `json:"model"`
	Summary string `json:"summary"`
}

// Work validates the request and returns a task work unit.
func (s *Summarizer) Work(req Request) (task.Work, error) {
	text := req.Text
	if text == "" {
		if strings.TrimSpace(req.File) == "" {
			return nil, errors.New("summarize: text or file is required")
		}
		data, err := os.ReadFile(req.File)
		if err != nil {
			return nil, fmt.Errorf("summarize: %w", err)
		}
		text = string(data)
	}

	return func(ctx context.Context, report func(float64)) (any, error) {
		report(0.1)
		out, err := s.Summarize(ctx, text)
		if err != nil {
			return nil, err
		}
		report(1)
		return Result{Model: s.model, Summary: out}, nil
	}, nil
}
