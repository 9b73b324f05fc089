// Package conversation tracks one request/response exchange at a time on top
// of a gateway. It is optional: the gateway works without it.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	apierrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/gateway"
	"github.com/diogo/geminichat/internal/models"
)

// ErrNoTurn is returned by Wait before anything was sent
var ErrNoTurn = errors.New("no message has been sent")

// State is the lifecycle of the current turn
type State int

const (
	StateIdle State = iota
	StateAwaiting
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InFlight reports whether a response is still expected
func (s State) InFlight() bool {
	return s == StateAwaiting || s == StateStreaming
}

// Next returns the state reached when a model message with status arrives in
// state s. ok is false when the message does not belong to a turn.
func Next(s State, status models.Status) (next State, ok bool) {
	if !s.InFlight() {
		return s, false
	}
	switch status {
	case models.StatusProgress:
		return StateStreaming, true
	case models.StatusSuccess:
		return StateCompleted, true
	case models.StatusError:
		return StateFailed, true
	}
	return s, false
}

// Gateway is what the tracker needs from gateway.Gateway
type Gateway interface {
	Send(ctx context.Context, message string, images []string) error
	Subscribe(fn gateway.Handler) *gateway.Subscription
	Done() <-chan struct{}
}

// Tracker drives the state machine for one conversation
type Tracker struct {
	gw         Gateway
	id         string
	sub        *gateway.Subscription
	logger     *slog.Logger
	onProgress func(models.InboundMessage)

	mu       sync.Mutex
	state    State
	progress []string
	last     models.InboundMessage
	settled  chan struct{}
}

// Option configures a Tracker
type Option func(*Tracker)

// WithProgressHandler is called for every progress message of a turn
func WithProgressHandler(fn func(models.InboundMessage)) Option {
	return func(t *Tracker) {
		t.onProgress = fn
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New subscribes a tracker to gw
func New(gw Gateway, opts ...Option) *Tracker {
	t := &Tracker{
		gw:     gw,
		id:     uuid.NewString(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("conversation", t.id)
	t.sub = gw.Subscribe(t.handle)
	return t
}

// ID returns the conversation identifier
func (t *Tracker) ID() string {
	return t.id
}

// State returns the current state
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns the progress texts received during the current turn
func (t *Tracker) Progress() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.progress))
	copy(out, t.progress)
	return out
}

// Send starts a new turn. It fails with ErrBusy while one is in flight.
func (t *Tracker) Send(ctx context.Context, message string, images []string) error {
	t.mu.Lock()
	if t.state.InFlight() {
		t.mu.Unlock()
		return apierrors.ErrBusy
	}
	prevState, prevSettled := t.state, t.settled
	t.state = StateAwaiting
	t.progress = nil
	t.last = models.InboundMessage{}
	t.settled = make(chan struct{})
	t.mu.Unlock()

	if err := t.gw.Send(ctx, message, images); err != nil {
		t.mu.Lock()
		t.state, t.settled = prevState, prevSettled
		t.mu.Unlock()
		return err
	}

	t.logger.Debug("turn started", "state", StateAwaiting)
	return nil
}

// Wait blocks until the current turn settles and returns its final message.
// A failed turn returns the message together with a ResponseError.
func (t *Tracker) Wait(ctx context.Context) (models.InboundMessage, error) {
	t.mu.Lock()
	settled := t.settled
	t.mu.Unlock()

	if settled == nil {
		return models.InboundMessage{}, ErrNoTurn
	}

	select {
	case <-settled:
	case <-ctx.Done():
		return models.InboundMessage{}, ctx.Err()
	case <-t.gw.Done():
		select {
		case <-settled:
		default:
			return models.InboundMessage{}, apierrors.ErrClosed
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateFailed {
		return t.last, apierrors.NewResponseError(t.last.Message)
	}
	return t.last, nil
}

// Close stops tracking. Pending Wait calls still honor their context.
func (t *Tracker) Close() {
	t.sub.Unsubscribe()
}

func (t *Tracker) handle(msg models.InboundMessage) {
	if msg.Role != models.RoleModel {
		return
	}

	t.mu.Lock()
	next, ok := Next(t.state, msg.Status)
	if !ok {
		t.mu.Unlock()
		t.logger.Debug("ignoring unsolicited message", "state", t.State(), "status", msg.Status)
		return
	}
	t.state = next
	switch next {
	case StateStreaming:
		t.progress = append(t.progress, msg.Message)
	case StateCompleted, StateFailed:
		t.last = msg
		close(t.settled)
	}
	t.mu.Unlock()

	t.logger.Debug("turn transition", "state", next)
	if next == StateStreaming && t.onProgress != nil {
		t.onProgress(msg)
	}
}
