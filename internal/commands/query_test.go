package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/diogo/geminichat/internal/config"
	apierrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
)

func TestRunQuery_PrintsFinalReply(t *testing.T) {
	relay := newFakeRelay(t,
		modelFrame("progress", "thinking"),
		modelFrame("progress", "still thinking"),
		modelFrame("success", "final answer", "http://example.com/a.png"),
	)
	d, stdout, _ := testDeps(t, relay.endpoint())

	err := runQuery(context.Background(), d, "  hello  ", queryOptions{
		images: []string{"http://example.com/in.png"},
	})
	if err != nil {
		t.Fatalf("runQuery() error: %v", err)
	}

	want := `42["message",{"message":"hello","images":["http://example.com/in.png"]}]`
	if got := relay.lastEmit(t); got != want {
		t.Errorf("emitted %s, want %s", got, want)
	}
	if got := stdout.String(); got != "final answer\nhttp://example.com/a.png\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestRunQuery_ErrorStatus(t *testing.T) {
	relay := newFakeRelay(t, modelFrame("error", "quota exceeded"))
	d, stdout, _ := testDeps(t, relay.endpoint())

	err := runQuery(context.Background(), d, "hello", queryOptions{})
	if !apierrors.IsResponseError(err) {
		t.Fatalf("expected ResponseError, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error %q does not carry the model message", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should be printed on error, got %q", stdout.String())
	}
}

func TestRunQuery_IgnoresUserEcho(t *testing.T) {
	relay := newFakeRelay(t,
		`42["message",{"role":"user","status":"success","message":"hello"}]`,
		modelFrame("success", "hi there"),
	)
	d, stdout, _ := testDeps(t, relay.endpoint())

	if err := runQuery(context.Background(), d, "hello", queryOptions{}); err != nil {
		t.Fatalf("runQuery() error: %v", err)
	}
	if got := stdout.String(); got != "hi there\n" {
		t.Errorf("stdout = %q, want %q", got, "hi there\n")
	}
}

func TestRunQuery_WritesOutputFile(t *testing.T) {
	relay := newFakeRelay(t, modelFrame("success", "saved text"))
	d, stdout, _ := testDeps(t, relay.endpoint())
	out := filepath.Join(t.TempDir(), "reply.md")

	if err := runQuery(context.Background(), d, "hello", queryOptions{output: out}); err != nil {
		t.Fatalf("runQuery() error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "saved text\n" {
		t.Errorf("file = %q", data)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be empty when writing a file, got %q", stdout.String())
	}
}

func TestRunQuery_CopiesToClipboard(t *testing.T) {
	relay := newFakeRelay(t, modelFrame("success", "copy me"))
	d, _, _ := testDeps(t, relay.endpoint())

	load := d.LoadConfig
	d.LoadConfig = func() (config.Config, error) {
		cfg, err := load()
		cfg.CopyToClipboard = true
		return cfg, err
	}
	var copied string
	d.Clipboard = func(s string) error {
		copied = s
		return nil
	}

	if err := runQuery(context.Background(), d, "hello", queryOptions{}); err != nil {
		t.Fatalf("runQuery() error: %v", err)
	}
	if copied != "copy me" {
		t.Errorf("clipboard = %q, want %q", copied, "copy me")
	}
}

func TestRunQuery_ClipboardFailureIsNotFatal(t *testing.T) {
	relay := newFakeRelay(t, modelFrame("success", "text"))
	d, _, stderr := testDeps(t, relay.endpoint())

	load := d.LoadConfig
	d.LoadConfig = func() (config.Config, error) {
		cfg, err := load()
		cfg.CopyToClipboard = true
		return cfg, err
	}
	d.Clipboard = func(string) error { return errors.New("no display") }

	if err := runQuery(context.Background(), d, "hello", queryOptions{}); err != nil {
		t.Fatalf("runQuery() error: %v", err)
	}
	if !strings.Contains(stderr.String(), "no display") {
		t.Errorf("expected clipboard warning on stderr, got %q", stderr.String())
	}
}

func TestRunQuery_EmptyPrompt(t *testing.T) {
	d, _, _ := testDeps(t, "http://127.0.0.1:1")
	d.Connect = nil

	if err := runQuery(context.Background(), d, "   ", queryOptions{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestRunQuery_ImageOnly(t *testing.T) {
	relay := newFakeRelay(t, modelFrame("success", "a cat"))
	d, _, _ := testDeps(t, relay.endpoint())

	if err := runQuery(context.Background(), d, "", queryOptions{images: []string{"https://example.com/cat.jpg"}}); err != nil {
		t.Fatalf("runQuery() error: %v", err)
	}
	want := `42["message",{"message":"","images":["https://example.com/cat.jpg"]}]`
	if got := relay.lastEmit(t); got != want {
		t.Errorf("emitted %s, want %s", got, want)
	}
}

func TestRunQuery_BadAttachment(t *testing.T) {
	d, _, _ := testDeps(t, "http://127.0.0.1:1")
	d.Connect = nil

	err := runQuery(context.Background(), d, "hello", queryOptions{images: []string{"not an image!"}})
	var attachErr *apierrors.AttachmentError
	if !errors.As(err, &attachErr) {
		t.Fatalf("expected AttachmentError, got %v", err)
	}
}

func TestRunQuery_ConnectionRefused(t *testing.T) {
	relay := newFakeRelay(t)
	endpoint := relay.endpoint()
	relay.srv.Close()

	d, _, _ := testDeps(t, endpoint)
	err := runQuery(context.Background(), d, "hello", queryOptions{})
	if !apierrors.IsConnectionError(err) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if got := apierrors.GetEndpoint(err); got == "" {
		t.Error("connection error should carry the endpoint")
	}
}

func TestRunQuery_ResponseTimeout(t *testing.T) {
	relay := newFakeRelay(t)
	d, _, _ := testDeps(t, relay.endpoint())

	load := d.LoadConfig
	d.LoadConfig = func() (config.Config, error) {
		cfg, err := load()
		cfg.ResponseTimeout = 1
		return cfg, err
	}

	err := runQuery(context.Background(), d, "hello", queryOptions{})
	if !apierrors.IsTimeoutError(err) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestRunQuery_EndpointFlagOverridesConfig(t *testing.T) {
	relay := newFakeRelay(t, modelFrame("success", "ok"))
	d, stdout, _ := testDeps(t, "http://127.0.0.1:1")
	endpointFlag = relay.endpoint()

	if err := runQuery(context.Background(), d, "hello", queryOptions{}); err != nil {
		t.Fatalf("runQuery() error: %v", err)
	}
	if stdout.String() != "ok\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunQuery_InvalidEndpoint(t *testing.T) {
	d, _, _ := testDeps(t, "ftp://example.com")
	d.Connect = nil

	if err := runQuery(context.Background(), d, "hello", queryOptions{}); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestPlainReply(t *testing.T) {
	tests := []struct {
		name    string
		message string
		images  []string
		want    string
	}{
		{"text only", "hi", nil, "hi\n"},
		{"trailing newline kept once", "hi\n", nil, "hi\n"},
		{"with images", "look", []string{"u1", "u2"}, "look\nu1\nu2\n"},
		{"images only", "", []string{"u1"}, "\nu1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := modelReply(tt.message, tt.images)
			if got := plainReply(reply); got != tt.want {
				t.Errorf("plainReply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatErrorMessage_Nil(t *testing.T) {
	if got := formatErrorMessage(nil, "ctx"); got != "" {
		t.Fatalf("expected empty for nil error, got %s", got)
	}
}

func TestFormatErrorMessage_ConnectionError(t *testing.T) {
	err := apierrors.NewConnectionError("http://127.0.0.1:5000", "dial failed", errors.New("refused"))
	out := formatErrorMessage(err, "Error")

	for _, want := range []string{"Error", "dial failed", "Endpoint: http://127.0.0.1:5000", "Hint"} {
		if !strings.Contains(out, want) {
			t.Errorf("message missing %q: %s", want, out)
		}
	}
}

func TestFormatErrorMessage_PlainError(t *testing.T) {
	out := formatErrorMessage(errors.New("boom"), "Error")
	if !strings.Contains(out, "boom") {
		t.Errorf("message missing error text: %s", out)
	}
	if strings.Contains(out, "Hint") {
		t.Errorf("plain errors have no hint: %s", out)
	}
}

func modelReply(message string, images []string) models.InboundMessage {
	return models.InboundMessage{
		Role:    models.RoleModel,
		Status:  models.StatusSuccess,
		Message: message,
		Images:  images,
	}
}

func TestConnect_QueueSizeFromConfig(t *testing.T) {
	relay := newFakeRelay(t)
	d, _, _ := testDeps(t, relay.endpoint())
	cfg, err := d.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.QueueSize = 7

	session, err := Connect(context.Background(), cfg, newLogger(d.Stderr, false))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer session.Close()

	if got := cap(session.Conn.Events()); got != 7 {
		t.Errorf("event queue = %d, want 7", got)
	}
}
