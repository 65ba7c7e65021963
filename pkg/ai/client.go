// Package ai wraps the speech-to-text and extraction models used for voice notes.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/jwalitptl/patientflow/pkg/circuitbreaker"
	"github.com/jwalitptl/patientflow/pkg/metrics"
)

// ErrEmptyResponse is returned when the extraction model answers with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

type Transcription struct {
	Text     string
	Duration time.Duration
}

// Client is the speech and extraction collaborator. Its output is advisory.
type Client interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (*Transcription, error)
	// ExtractNotes returns the raw model answer for transcript. Callers parse it.
	ExtractNotes(ctx context.Context, transcript string) (string, error)
}

type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ExtractionModel    string
	Timeout            time.Duration
}

type OpenAIClient struct {
	client  *openai.Client
	cfg     Config
	cb      *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

var _ Client = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg Config, m *metrics.Metrics) *OpenAIClient {
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = openai.Whisper1
	}
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = openai.GPT4o
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:                "openai",
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 3,
		}),
		metrics: m,
	}
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (*Transcription, error) {
	var resp openai.AudioResponse
	err := c.call("transcribe", func() error {
		var err error
		resp, err = c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.cfg.TranscriptionModel,
			Reader:   audio,
			FilePath: filename,
			Language: "en",
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return &Transcription{
		Text:     resp.Text,
		Duration: time.Duration(resp.Duration * float64(time.Second)),
	}, nil
}

func (c *OpenAIClient) ExtractNotes(ctx context.Context, transcript string) (string, error) {
	var resp openai.ChatCompletionResponse
	err := c.call("extract", func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.cfg.ExtractionModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: ExtractionPrompt(transcript)},
			},
			Temperature: 0.1,
			MaxTokens:   2000,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to extract notes: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) call(operation string, fn func() error) error {
	err := c.cb.Execute(fn)
	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.AIRequests.WithLabelValues(operation, status).Inc()
	}
	return err
}
