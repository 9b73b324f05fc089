// Package gateway is the message-level facade over a transport connection:
// one call to send a user message, one to subscribe to inbound messages.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	apierrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
	"github.com/diogo/geminichat/internal/socketio"
)

// Transport is the part of transport.Conn the gateway needs
type Transport interface {
	Emit(ctx context.Context, event string, args ...any) error
	Events() <-chan socketio.Event
}

// Handler receives one inbound message
type Handler func(models.InboundMessage)

// Gateway sends outbound messages and fans inbound ones out to subscribers.
// Handlers run on a single dispatch goroutine, one at a time, in
// registration order.
type Gateway struct {
	conn    Transport
	logger  *slog.Logger
	onError func(error)
	limiter *rate.Limiter

	mu   sync.RWMutex
	subs []*Subscription

	done chan struct{}
}

// Option configures a Gateway
type Option func(*Gateway)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithErrorHandler is called for inbound payloads that cannot be decoded.
// Such payloads are not dispatched.
func WithErrorHandler(fn func(error)) Option {
	return func(g *Gateway) {
		g.onError = fn
	}
}

// WithRateLimit caps outbound messages at r per second with the given burst
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(g *Gateway) {
		if r > 0 {
			if burst < 1 {
				burst = 1
			}
			g.limiter = rate.NewLimiter(r, burst)
		}
	}
}

// New wraps conn and starts dispatching its inbound events
func New(conn Transport, opts ...Option) *Gateway {
	g := &Gateway{
		conn:   conn,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	go g.run()
	return g
}

// Send emits one "message" event carrying text and images in order.
// There is no acknowledgement: a nil error means the frame was queued.
func (g *Gateway) Send(ctx context.Context, message string, images []string) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload := models.NewOutboundMessage(message, images)
	if err := g.conn.Emit(ctx, models.EventMessage, payload); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	g.logger.Debug("message sent", "chars", len(message), "images", len(payload.Images))
	return nil
}

// Subscribe registers fn for every inbound message until the returned
// subscription is cancelled. Registrations accumulate; each one fires.
func (g *Gateway) Subscribe(fn Handler) *Subscription {
	s := &Subscription{gateway: g, handler: fn}
	s.active.Store(true)

	g.mu.Lock()
	g.subs = append(g.subs, s)
	g.mu.Unlock()
	return s
}

// Subscribers returns the number of active subscriptions
func (g *Gateway) Subscribers() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subs)
}

// Done is closed once the transport's event stream ends
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

func (g *Gateway) remove(s *Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, sub := range g.subs {
		if sub == s {
			g.subs = append(g.subs[:i:i], g.subs[i+1:]...)
			return
		}
	}
}

func (g *Gateway) run() {
	defer close(g.done)

	for ev := range g.conn.Events() {
		if ev.Name != models.EventMessage {
			g.logger.Debug("ignoring event", "event", ev.Name)
			continue
		}

		msg, err := decodeInbound(ev)
		if err != nil {
			g.logger.Warn("dropping inbound message", "err", err)
			if g.onError != nil {
				g.onError(err)
			}
			continue
		}
		g.dispatch(msg)
	}
}

func (g *Gateway) dispatch(msg models.InboundMessage) {
	g.mu.RLock()
	subs := make([]*Subscription, len(g.subs))
	copy(subs, g.subs)
	g.mu.RUnlock()

	for _, s := range subs {
		if s.active.Load() {
			s.handler(msg)
		}
	}
}

func decodeInbound(ev socketio.Event) (models.InboundMessage, error) {
	var msg models.InboundMessage
	if len(ev.Args) == 0 {
		return msg, apierrors.NewProtocolError("message event without payload", "")
	}
	if err := json.Unmarshal(ev.Args[0], &msg); err != nil {
		return msg, apierrors.NewProtocolError(fmt.Sprintf("invalid message payload: %v", err), string(ev.Args[0]))
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	gateway *Gateway
	handler Handler
	active  atomic.Bool
	once    sync.Once
}

// Unsubscribe stops delivery. Events dispatched after it returns are not
// seen by the handler. Calling it again is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.gateway.remove(s)
	})
}

// Active reports whether the subscription still receives messages
func (s *Subscription) Active() bool {
	return s.active.Load()
}
