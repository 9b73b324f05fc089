package commands

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/diogo/geminichat/internal/config"
	"github.com/diogo/geminichat/internal/conversation"
	"github.com/diogo/geminichat/internal/gateway"
	"github.com/diogo/geminichat/internal/transport"
)

// Session bundles one connection with its gateway and conversation tracker
type Session struct {
	Conn    *transport.Conn
	Gateway *gateway.Gateway
	Tracker *conversation.Tracker
}

// Close stops tracking and tears the connection down
func (s *Session) Close() error {
	s.Tracker.Close()
	return s.Conn.Close()
}

// Connect dials cfg.Endpoint and wires a gateway and tracker onto it.
// trackerOpts are passed to the conversation tracker.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger, trackerOpts ...conversation.Option) (*Session, error) {
	if d := cfg.DialTimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	opts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithNamespace(cfg.Namespace),
		transport.WithErrorHandler(func(err error) {
			logger.Warn("connection error", "err", err)
		}),
	}
	if cfg.Proxy != "" {
		opts = append(opts, transport.WithProxy(cfg.Proxy))
	}
	if d := cfg.DialTimeoutDuration(); d > 0 {
		opts = append(opts, transport.WithHandshakeTimeout(d))
	}
	if cfg.QueueSize > 0 {
		opts = append(opts, transport.WithSendQueue(cfg.QueueSize), transport.WithEventQueue(cfg.QueueSize))
	}

	conn, err := transport.Dial(ctx, cfg.Endpoint, opts...)
	if err != nil {
		return nil, err
	}

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithErrorHandler(func(err error) {
			logger.Warn("invalid message from server", "err", err)
		}),
	}
	if cfg.SendRate > 0 {
		gwOpts = append(gwOpts, gateway.WithRateLimit(rate.Limit(cfg.SendRate), 1))
	}
	gw := gateway.New(conn, gwOpts...)

	return &Session{
		Conn:    conn,
		Gateway: gw,
		Tracker: conversation.New(gw, append([]conversation.Option{conversation.WithLogger(logger)}, trackerOpts...)...),
	}, nil
}
