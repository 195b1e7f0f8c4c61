package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smartdocs/smartdocs/internal/config"
)

// Stream is a finite, single-pass token sequence from the completion provider.
// Tokens() closes when the model is done or the request fails; Err() is valid
// after that.
type Stream struct {
	tokens <-chan string
	err    *error
	done   <-chan struct{}
}

// Tokens returns the channel of response fragments in arrival order.
func (s *Stream) Tokens() <-chan string {
	return s.tokens
}

// Err reports why the stream ended. It blocks until the stream is finished and
// returns nil for a normal completion.
func (s *Stream) Err() error {
	<-s.done
	return *s.err
}

// Text drains the stream and returns the concatenated response.
func (s *Stream) Text() (string, error) {
	var b strings.Builder
	for tok := range s.Tokens() {
		b.WriteString(tok)
	}
	return b.String(), s.Err()
}

// Client produces completions for assembled prompts.
type Client interface {
	Generate(ctx context.Context, prompt string) (*Stream, error)
}

// OllamaClient streams completions from an Ollama-compatible HTTP endpoint.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithLogger sets the logger for the client.
func WithLogger(logger *zap.Logger) OllamaOption {
	return func(c *OllamaClient) {
		c.logger = logger
	}
}

// NewOllamaClient creates a streaming completion client.
func NewOllamaClient(cfg *config.GenerateConfig, opts ...OllamaOption) *OllamaClient {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c := &OllamaClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate sends the prompt and returns a token stream. The returned error covers
// request setup and connection failure; mid-stream failures surface through
// Stream.Err. Cancelling ctx closes the stream promptly.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (*Stream, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("generation request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	tokens := make(chan string)
	done := make(chan struct{})
	var streamErr error
	go func() {
		defer resp.Body.Close()
		defer close(done)
		defer close(tokens)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				streamErr = fmt.Errorf("decode stream: %w", err)
				return
			}
			if chunk.Error != "" {
				streamErr = fmt.Errorf("provider error: %s", chunk.Error)
				return
			}
			if chunk.Response != "" {
				select {
				case tokens <- chunk.Response:
				case <-ctx.Done():
					streamErr = ctx.Err()
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				streamErr = ctx.Err()
				return
			}
			streamErr = fmt.Errorf("read stream: %w", err)
		}
	}()

	c.logger.Debug("generation started",
		zap.String("model", c.model),
		zap.Int("prompt_chars", len(prompt)))
	return &Stream{tokens: tokens, err: &streamErr, done: done}, nil
}
