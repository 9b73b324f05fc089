// Package transport owns the persistent Socket.IO connection to the relay
// server: dialing, the Engine.IO handshake, heartbeats and teardown.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"

	apierrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/socketio"
)

// DefaultEndpoint is the relay server address
const DefaultEndpoint = "http://127.0.0.1:5000"

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultQueueSize        = 64
)

// Conn is a single Socket.IO session over a WebSocket.
//
// One goroutine reads frames and publishes EVENT packets on Events(); another
// drains the outbound queue. All socket writes go through writeFrame, so the
// connection never has two concurrent writers.
type Conn struct {
	endpoint         string
	namespace        string
	auth             any
	header           http.Header
	proxyURL         string
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	sendQueue        int
	eventQueue       int
	logger           *slog.Logger
	onError          func(error)

	ws  *websocket.Conn
	hs  socketio.Handshake
	sid string

	send     chan []byte
	events   chan socketio.Event
	done     chan struct{}
	readDone chan struct{}

	wmu       sync.Mutex
	mu        sync.RWMutex
	err       error
	closing   atomic.Bool
	inHandler atomic.Bool
	closeOnce sync.Once
}

// Option configures a Conn
type Option func(*Conn)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithErrorHandler registers a callback for connection loss and undecodable
// frames. It runs on the reader goroutine and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Conn) {
		c.onError = fn
	}
}

// WithNamespace joins a namespace other than "/"
func WithNamespace(namespace string) Option {
	return func(c *Conn) {
		if namespace == "" {
			namespace = socketio.DefaultNamespace
		}
		if !strings.HasPrefix(namespace, "/") {
			namespace = "/" + namespace
		}
		c.namespace = namespace
	}
}

// WithAuth sends auth as the CONNECT payload
func WithAuth(auth map[string]any) Option {
	return func(c *Conn) {
		if len(auth) > 0 {
			c.auth = auth
		}
	}
}

// WithHeader adds HTTP headers to the WebSocket upgrade request
func WithHeader(header http.Header) Option {
	return func(c *Conn) {
		c.header = header
	}
}

// WithProxy routes the connection through an http(s) or socks5 proxy
func WithProxy(proxyURL string) Option {
	return func(c *Conn) {
		c.proxyURL = proxyURL
	}
}

// WithHandshakeTimeout bounds the dial plus Socket.IO handshake
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithWriteTimeout bounds each frame write
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithSendQueue sets the outbound queue capacity
func WithSendQueue(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.sendQueue = n
		}
	}
}

// WithEventQueue sets the inbound event buffer capacity
func WithEventQueue(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.eventQueue = n
		}
	}
}

// Dial connects to endpoint and joins the namespace. It returns once the
// server has acknowledged the CONNECT packet.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Conn, error) {
	c := &Conn{
		endpoint:         endpoint,
		namespace:        socketio.DefaultNamespace,
		handshakeTimeout: defaultHandshakeTimeout,
		writeTimeout:     defaultWriteTimeout,
		sendQueue:        defaultQueueSize,
		eventQueue:       defaultQueueSize,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}

	wsURL, err := SocketURL(endpoint)
	if err != nil {
		return nil, apierrors.NewConnectionError(endpoint, "invalid endpoint", err)
	}

	dialer, err := c.dialer()
	if err != nil {
		return nil, apierrors.NewConnectionError(endpoint, "invalid proxy", err)
	}

	c.logger.Debug("dialing", "url", wsURL)
	ws, resp, err := dialer.DialContext(ctx, wsURL, c.header)
	if err != nil {
		msg := "dial"
		if resp != nil {
			msg = fmt.Sprintf("dial (HTTP %d)", resp.StatusCode)
		}
		return nil, apierrors.NewConnectionError(endpoint, msg, err)
	}
	c.ws = ws

	if err := c.handshake(ctx); err != nil {
		_ = ws.Close()
		return nil, err
	}

	c.send = make(chan []byte, c.sendQueue)
	c.events = make(chan socketio.Event, c.eventQueue)
	c.done = make(chan struct{})
	c.readDone = make(chan struct{})

	go c.readLoop()
	go c.writeLoop()

	c.logger.Info("connected", "endpoint", endpoint, "sid", c.sid, "namespace", c.namespace)
	return c, nil
}

// SocketURL maps an http(s) or ws(s) endpoint to the Engine.IO WebSocket URL
func SocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", endpoint)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Conn) dialer() (*websocket.Dialer, error) {
	d := &websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if c.proxyURL == "" {
		return d, nil
	}

	u, err := url.Parse(c.proxyURL)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		d.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		pd, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, err
		}
		d.Proxy = nil
		if cd, ok := pd.(proxy.ContextDialer); ok {
			d.NetDialContext = cd.DialContext
		} else {
			d.NetDial = pd.Dial
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return d, nil
}

// handshake reads the open frame, sends CONNECT and waits for the ack
func (c *Conn) handshake(ctx context.Context) error {
	deadline := time.Now().Add(c.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetReadDeadline(deadline)
	_ = c.ws.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	f, err := c.readFrame()
	if err != nil {
		return c.handshakeError(ctx, "waiting for open packet", err)
	}
	if f.Type != socketio.FrameOpen {
		return apierrors.NewConnectionError(c.endpoint, fmt.Sprintf("expected open packet, got %s", f.Type), nil)
	}
	hs, err := socketio.ParseHandshake(f.Payload)
	if err != nil {
		return apierrors.NewConnectionError(c.endpoint, "handshake", err)
	}
	c.hs = hs

	frame, err := socketio.ConnectFrame(c.namespace, c.auth)
	if err != nil {
		return apierrors.NewConnectionError(c.endpoint, "handshake", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return c.handshakeError(ctx, "sending connect packet", err)
	}

	for {
		f, err := c.readFrame()
		if err != nil {
			return c.handshakeError(ctx, "waiting for connect ack", err)
		}

		switch f.Type {
		case socketio.FramePing:
			if err := c.ws.WriteMessage(websocket.TextMessage, socketio.EncodeFrame(socketio.FramePong, f.Payload)); err != nil {
				return c.handshakeError(ctx, "answering ping", err)
			}
		case socketio.FrameClose:
			return apierrors.NewConnectionError(c.endpoint, "server closed the connection during handshake", nil)
		case socketio.FrameMessage:
			p := f.Packet
			if p.Namespace != c.namespace {
				continue
			}
			switch p.Type {
			case socketio.PacketConnect:
				c.sid = socketio.ConnectSID(*p)
				if c.sid == "" {
					c.sid = hs.SID
				}
				_ = c.ws.SetWriteDeadline(time.Time{})
				return nil
			case socketio.PacketConnectError:
				return apierrors.NewConnectionError(c.endpoint, socketio.ConnectErrorMessage(*p), nil)
			}
		}
	}
}

func (c *Conn) handshakeError(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apierrors.NewConnectionError(c.endpoint, step, ctxErr)
	}
	if isTimeout(err) {
		return apierrors.NewConnectionError(c.endpoint, step, apierrors.NewTimeoutError("handshake"))
	}
	return apierrors.NewConnectionError(c.endpoint, step, err)
}

func (c *Conn) readFrame() (socketio.Frame, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return socketio.Frame{}, err
	}
	if mt != websocket.TextMessage {
		return socketio.Frame{}, apierrors.NewProtocolError("binary frames are not supported", "")
	}
	return socketio.DecodeFrame(data)
}

// heartbeatWindow is how long the reader waits for any frame before
// declaring the server gone. Zero disables the deadline.
func (c *Conn) heartbeatWindow() time.Duration {
	return c.hs.PingInterval + c.hs.PingTimeout
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer close(c.events)

	for {
		if window := c.heartbeatWindow(); window > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(window))
		} else {
			_ = c.ws.SetReadDeadline(time.Time{})
		}

		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(c.readError(err))
			return
		}
		if mt != websocket.TextMessage {
			c.reportError(apierrors.NewProtocolError("binary frames are not supported", ""))
			continue
		}

		f, err := socketio.DecodeFrame(data)
		if err != nil {
			c.reportError(err)
			continue
		}

		switch f.Type {
		case socketio.FramePing:
			if err := c.writeFrame(socketio.EncodeFrame(socketio.FramePong, f.Payload)); err != nil {
				c.shutdown(apierrors.NewConnectionError(c.endpoint, "pong", err))
				return
			}
		case socketio.FrameClose:
			c.shutdown(apierrors.ErrServerDisconnect)
			return
		case socketio.FrameMessage:
			if !c.handlePacket(*f.Packet) {
				return
			}
		}
	}
}

// handlePacket returns false when the read loop must stop
func (c *Conn) handlePacket(p socketio.Packet) bool {
	if p.Namespace != c.namespace {
		c.logger.Debug("ignoring packet for other namespace", "namespace", p.Namespace)
		return true
	}

	switch p.Type {
	case socketio.PacketDisconnect:
		c.shutdown(apierrors.ErrServerDisconnect)
		return false
	case socketio.PacketConnectError:
		c.shutdown(apierrors.NewConnectionError(c.endpoint, socketio.ConnectErrorMessage(p), nil))
		return false
	case socketio.PacketEvent:
		ev, err := socketio.ParseEvent(p)
		if err != nil {
			c.reportError(err)
			return true
		}
		select {
		case c.events <- ev:
			return true
		case <-c.done:
			return false
		}
	default:
		c.logger.Debug("ignoring packet", "type", p.Type.String())
		return true
	}
}

func (c *Conn) readError(err error) error {
	if c.closing.Load() {
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}

	switch {
	case isTimeout(err):
		return apierrors.NewTimeoutError(fmt.Sprintf("no heartbeat from server within %s", c.heartbeatWindow()))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return apierrors.ErrServerDisconnect
	default:
		return apierrors.NewConnectionError(c.endpoint, "read", err)
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case frame := <-c.send:
			if err := c.writeFrame(frame); err != nil {
				c.shutdown(apierrors.NewConnectionError(c.endpoint, "write", err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeFrame(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Emit queues one EVENT packet. It does not wait for the frame to reach the
// network; it only blocks while the outbound queue is full.
func (c *Conn) Emit(ctx context.Context, event string, args ...any) error {
	frame, err := socketio.EventFrame(c.namespace, event, args...)
	if err != nil {
		return err
	}
	if c.hs.MaxPayload > 0 && len(frame) > c.hs.MaxPayload {
		return fmt.Errorf("%w: %d bytes, limit %d", apierrors.ErrPayloadTooLarge, len(frame), c.hs.MaxPayload)
	}

	select {
	case <-c.done:
		return apierrors.ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return apierrors.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events delivers inbound EVENT packets in arrival order. The channel is
// closed when the connection ends.
func (c *Conn) Events() <-chan socketio.Event {
	return c.events
}

// Done is closed when the connection has ended for any reason
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended; nil while open or after Close
func (c *Conn) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// SID returns the Socket.IO session id assigned by the server
func (c *Conn) SID() string {
	return c.sid
}

// Endpoint returns the address the connection was dialed with
func (c *Conn) Endpoint() string {
	return c.endpoint
}

// Handshake returns the Engine.IO parameters advertised by the server
func (c *Conn) Handshake() socketio.Handshake {
	return c.hs
}

// Close sends DISCONNECT, closes the socket and waits for the reader to
// exit. It is safe to call more than once, including from the error handler.
func (c *Conn) Close() error {
	select {
	case <-c.done:
		c.waitReader()
		return nil
	default:
	}

	c.closing.Store(true)
	_ = c.writeFrame(socketio.DisconnectFrame(c.namespace))
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout),
	)
	c.shutdown(nil)
	c.waitReader()
	return nil
}

// waitReader blocks until the read loop has exited. Inside the error handler
// the caller may be the read loop itself, so it does not wait there.
func (c *Conn) waitReader() {
	if c.inHandler.Load() {
		return
	}
	<-c.readDone
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()

		close(c.done)
		_ = c.ws.Close()

		if err != nil {
			c.logger.Warn("connection lost", "endpoint", c.endpoint, "err", err)
			c.reportError(err)
			return
		}
		c.logger.Info("disconnected", "endpoint", c.endpoint)
	})
}

func (c *Conn) reportError(err error) {
	if apierrors.IsProtocolError(err) {
		c.logger.Warn("dropping frame", "err", err)
	}
	if c.onError != nil {
		c.inHandler.Store(true)
		defer c.inHandler.Store(false)
		c.onError(err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
