package llmservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"policy-rag/internal/config"
	"policy-rag/internal/models"
)

type fakeModel struct {
	reply  string
	err    error
	chunks []string

	got  []llms.MessageContent
	opts llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = msgs
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.opts.StreamingFunc != nil {
		for _, c := range f.chunks {
			if err := f.opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestCompleteMapsRoles(t *testing.T) {
	t.Parallel()
	fm := &fakeModel{reply: "Reasoning: ok"}
	c := NewWithModel(fm, "fake")
	out, err := c.Complete(context.Background(), []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	}, models.Params{Temperature: 0.2, MaxTokens: 64})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "Reasoning: ok" {
		t.Fatalf("Complete() = %q", out)
	}
	want := []schema.ChatMessageType{schema.ChatMessageTypeSystem, schema.ChatMessageTypeHuman, schema.ChatMessageTypeAI}
	for i, m := range fm.got {
		if m.Role != want[i] {
			t.Fatalf("role[%d] = %s, want %s", i, m.Role, want[i])
		}
	}
	if fm.opts.Temperature != 0.2 || fm.opts.MaxTokens != 64 {
		t.Fatalf("options = %+v", fm.opts)
	}
}

func TestCompleteStreams(t *testing.T) {
	t.Parallel()
	fm := &fakeModel{reply: "Hello world", chunks: []string{"Hello", " world"}}
	c := NewWithModel(fm, "fake")
	var buf bytes.Buffer
	c.StreamTo(&buf)
	out, err := c.Complete(context.Background(), nil, models.Params{MaxTokens: 8})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if buf.String() != "Hello world" || out != "Hello world" {
		t.Fatalf("streamed %q, returned %q", buf.String(), out)
	}
}

func TestCompleteClassifiesErrors(t *testing.T) {
	t.Parallel()
	c := NewWithModel(&fakeModel{err: fmt.Errorf("request: %w", context.DeadlineExceeded)}, "fake")
	_, err := c.Complete(context.Background(), nil, models.Params{})
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("Complete() error = %v, want ProviderError", err)
	}
	if pe.Kind != TimeoutOrRateLimit || pe.Op != "complete" {
		t.Fatalf("ProviderError = %+v", pe)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestTranslatePrompt(t *testing.T) {
	t.Parallel()
	fm := &fakeModel{reply: "Hola"}
	c := NewWithModel(fm, "fake")
	out, err := c.Translate(context.Background(), "Hello", "Spanish", 100)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out != "Hola" {
		t.Fatalf("Translate() = %q", out)
	}
	if len(fm.got) != 1 || fm.got[0].Role != schema.ChatMessageTypeHuman {
		t.Fatalf("messages = %+v", fm.got)
	}
	text := fm.got[0].Parts[0].(llms.TextContent).Text
	if text != "Hello\n\nTranslate the text above in Spanish" {
		t.Fatalf("prompt = %q", text)
	}
	if fm.opts.Temperature != 0 || fm.opts.MaxTokens != 100 {
		t.Fatalf("options = %+v", fm.opts)
	}
}

func TestNewModelUnknownProvider(t *testing.T) {
	t.Parallel()
	if _, err := NewModel(&config.LLMConfig{Provider: "bard"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net failure" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("API returned unexpected status code: 401: Incorrect API key provided"), AuthenticationFailure},
		{errors.New("API returned unexpected status code: 429: Rate limit reached"), TimeoutOrRateLimit},
		{errors.New("API returned unexpected status code: 503: The server is overloaded"), ProviderUnavailable},
		{timeoutErr{timeout: true}, TimeoutOrRateLimit},
		{timeoutErr{timeout: false}, ConnectivityFailure},
		{errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), ConnectivityFailure},
		{context.DeadlineExceeded, TimeoutOrRateLimit},
		{context.Canceled, Canceled},
		{fmt.Errorf("post chat: %w", context.Canceled), Canceled},
		{errors.New("something odd"), ProviderUnavailable},
	}
	for _, tc := range cases {
		pe, ok := AsProviderError(Classify("op", tc.err))
		if !ok {
			t.Fatalf("Classify(%v) not a ProviderError", tc.err)
		}
		if pe.Kind != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, pe.Kind, tc.want)
		}
	}
	if Classify("op", nil) != nil {
		t.Fatalf("Classify(nil) != nil")
	}
}

func TestUserMessages(t *testing.T) {
	t.Parallel()
	for _, k := range []ErrorKind{ProviderUnavailable, AuthenticationFailure, ConnectivityFailure, TimeoutOrRateLimit, Canceled} {
		if msg := k.UserMessage(); len(msg) < 6 || msg[:6] != models.ErrorMarker {
			t.Fatalf("%s message %q lacks error marker", k, msg)
		}
	}
	if AuthenticationFailure.Retryable() || !TimeoutOrRateLimit.Retryable() {
		t.Fatalf("Retryable() wrong")
	}
	if Canceled.UserMessage() == ProviderUnavailable.UserMessage() {
		t.Fatalf("Canceled shares the provider busy message")
	}
}
