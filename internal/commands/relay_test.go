package commands

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/diogo/geminichat/internal/config"
)

// fakeRelay is a Socket.IO server that answers every "message" event with a
// fixed script of frames.
type fakeRelay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	script   []string
	received chan string
}

func newFakeRelay(t *testing.T, script ...string) *fakeRelay {
	t.Helper()

	r := &fakeRelay{
		script:   script,
		received: make(chan string, 8),
	}
	r.srv = httptest.NewServer(http.HandlerFunc(r.handle))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) handle(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	open := `0{"sid":"eng-1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		return
	}
	if _, _, err := ws.ReadMessage(); err != nil {
		return
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"sock-1"}`)); err != nil {
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frame := string(data)
		if !strings.HasPrefix(frame, "42") {
			continue
		}
		r.received <- frame
		for _, reply := range r.script {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}
}

func (r *fakeRelay) endpoint() string {
	return r.srv.URL
}

// lastEmit returns the next event frame the client sent
func (r *fakeRelay) lastEmit(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-r.received:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("relay received no message event")
		return ""
	}
}

// modelFrame builds an inbound "message" event frame
func modelFrame(status, message string, images ...string) string {
	imgs := ""
	if len(images) > 0 {
		imgs = `,"images":["` + strings.Join(images, `","`) + `"]`
	}
	return fmt.Sprintf(`42["message",{"role":"model","status":%q,"message":%q%s}]`, status, message, imgs)
}

// testDeps wires commands to endpoint with captured output and no terminal
func testDeps(t *testing.T, endpoint string) (*Dependencies, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GLAMOUR_STYLE", "")

	endpointFlag, verboseFlag = "", false
	t.Cleanup(func() { endpointFlag, verboseFlag = "", false })

	var stdout, stderr bytes.Buffer
	d := &Dependencies{
		LoadConfig: func() (config.Config, error) {
			cfg := config.DefaultConfig()
			cfg.Endpoint = endpoint
			cfg.DialTimeout = 2
			cfg.ResponseTimeout = 5
			return cfg, nil
		},
		Connect:   Connect,
		TUI:       &DefaultTUI{},
		Clipboard: func(string) error { return nil },
		Stdout:    &stdout,
		Stderr:    &stderr,
		IsTTY:     func() bool { return false },
	}
	return d, &stdout, &stderr
}
