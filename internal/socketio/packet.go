// Package socketio encodes and decodes Engine.IO v4 frames and the
// Socket.IO v5 packets carried inside them. Only the text encoding used by
// the WebSocket transport is supported.
package socketio

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/geminichat/internal/errors"
)

// DefaultNamespace is the namespace joined when none is configured
const DefaultNamespace = "/"

// FrameType is the Engine.IO packet type (first byte of every frame)
type FrameType byte

const (
	FrameOpen    FrameType = '0'
	FrameClose   FrameType = '1'
	FramePing    FrameType = '2'
	FramePong    FrameType = '3'
	FrameMessage FrameType = '4'
	FrameUpgrade FrameType = '5'
	FrameNoop    FrameType = '6'
)

func (t FrameType) String() string {
	switch t {
	case FrameOpen:
		return "open"
	case FrameClose:
		return "close"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameMessage:
		return "message"
	case FrameUpgrade:
		return "upgrade"
	case FrameNoop:
		return "noop"
	default:
		return fmt.Sprintf("frame(%q)", byte(t))
	}
}

// PacketType is the Socket.IO packet type carried in a message frame
type PacketType byte

const (
	PacketConnect      PacketType = '0'
	PacketDisconnect   PacketType = '1'
	PacketEvent        PacketType = '2'
	PacketAck          PacketType = '3'
	PacketConnectError PacketType = '4'
	PacketBinaryEvent  PacketType = '5'
	PacketBinaryAck    PacketType = '6'
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketEvent:
		return "EVENT"
	case PacketAck:
		return "ACK"
	case PacketConnectError:
		return "CONNECT_ERROR"
	case PacketBinaryEvent:
		return "BINARY_EVENT"
	case PacketBinaryAck:
		return "BINARY_ACK"
	default:
		return fmt.Sprintf("packet(%q)", byte(t))
	}
}

// NoID marks a packet without an acknowledgement id
const NoID = -1

// Packet is a decoded Socket.IO packet
type Packet struct {
	Type      PacketType
	Namespace string
	ID        int
	Data      []byte // raw JSON, nil when absent
}

// Frame is a decoded Engine.IO frame
type Frame struct {
	Type    FrameType
	Payload []byte  // raw payload after the type byte
	Packet  *Packet // set for FrameMessage
}

// Handshake is the body of the Engine.IO open frame
type Handshake struct {
	SID          string
	Upgrades     []string
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxPayload   int
}

// Event is a decoded EVENT packet
type Event struct {
	Namespace string
	Name      string
	Args      []json.RawMessage
	ID        int
}

// DecodeFrame parses one Engine.IO text frame
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, apierrors.NewProtocolError("empty frame", "")
	}

	f := Frame{Type: FrameType(data[0]), Payload: data[1:]}
	switch f.Type {
	case FrameOpen, FrameClose, FramePing, FramePong, FrameUpgrade, FrameNoop:
		return f, nil
	case FrameMessage:
		p, err := DecodePacket(f.Payload)
		if err != nil {
			return Frame{}, err
		}
		f.Packet = &p
		return f, nil
	default:
		return Frame{}, apierrors.NewProtocolError(
			fmt.Sprintf("unknown frame type %q", data[0]), truncate(data))
	}
}

// EncodeFrame builds an Engine.IO text frame
func EncodeFrame(t FrameType, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(t))
	return append(out, payload...)
}

// DecodePacket parses a Socket.IO packet (the payload of a message frame)
func DecodePacket(data []byte) (Packet, error) {
	if len(data) == 0 {
		return Packet{}, apierrors.NewProtocolError("empty packet", "")
	}

	p := Packet{Type: PacketType(data[0]), Namespace: DefaultNamespace, ID: NoID}
	switch p.Type {
	case PacketConnect, PacketDisconnect, PacketEvent, PacketAck, PacketConnectError:
	case PacketBinaryEvent, PacketBinaryAck:
		return Packet{}, apierrors.NewProtocolError("binary packets are not supported", truncate(data))
	default:
		return Packet{}, apierrors.NewProtocolError(
			fmt.Sprintf("unknown packet type %q", data[0]), truncate(data))
	}

	rest := data[1:]

	// Namespace: "/name," prefix, or the whole remainder if no comma follows.
	if len(rest) > 0 && rest[0] == '/' {
		end := strings.IndexByte(string(rest), ',')
		if end < 0 {
			p.Namespace = string(rest)
			rest = nil
		} else {
			p.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.Atoi(string(rest[:i]))
		if err != nil {
			return Packet{}, apierrors.NewProtocolError("invalid ack id", truncate(data))
		}
		p.ID = id
		rest = rest[i:]
	}

	if len(rest) > 0 {
		if !gjson.ValidBytes(rest) {
			return Packet{}, apierrors.NewProtocolError("packet data is not valid JSON", truncate(data))
		}
		p.Data = rest
	}

	return p, nil
}

// EncodePacket builds a message frame carrying p
func EncodePacket(p Packet) []byte {
	var sb strings.Builder
	sb.WriteByte(byte(FrameMessage))
	sb.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		sb.WriteString(p.Namespace)
		sb.WriteByte(',')
	}
	if p.ID >= 0 {
		sb.WriteString(strconv.Itoa(p.ID))
	}
	sb.Write(p.Data)
	return []byte(sb.String())
}

// ConnectFrame builds the CONNECT packet for namespace. auth may be nil.
func ConnectFrame(namespace string, auth any) ([]byte, error) {
	p := Packet{Type: PacketConnect, Namespace: namespace, ID: NoID}
	if auth != nil {
		data, err := json.Marshal(auth)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal auth: %w", err)
		}
		p.Data = data
	}
	return EncodePacket(p), nil
}

// DisconnectFrame builds the DISCONNECT packet for namespace
func DisconnectFrame(namespace string) []byte {
	return EncodePacket(Packet{Type: PacketDisconnect, Namespace: namespace, ID: NoID})
}

// EventFrame builds an EVENT packet: ["event", args...]
func EventFrame(namespace, event string, args ...any) ([]byte, error) {
	body := make([]any, 0, len(args)+1)
	body = append(body, event)
	body = append(body, args...)

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %q: %w", event, err)
	}
	return EncodePacket(Packet{Type: PacketEvent, Namespace: namespace, ID: NoID, Data: data}), nil
}

// ParseHandshake decodes the JSON body of an open frame
func ParseHandshake(payload []byte) (Handshake, error) {
	if !gjson.ValidBytes(payload) {
		return Handshake{}, apierrors.NewProtocolError("open frame is not valid JSON", truncate(payload))
	}

	parsed := gjson.ParseBytes(payload)
	h := Handshake{
		SID:          parsed.Get("sid").String(),
		PingInterval: time.Duration(parsed.Get("pingInterval").Int()) * time.Millisecond,
		PingTimeout:  time.Duration(parsed.Get("pingTimeout").Int()) * time.Millisecond,
		MaxPayload:   int(parsed.Get("maxPayload").Int()),
	}
	parsed.Get("upgrades").ForEach(func(_, v gjson.Result) bool {
		h.Upgrades = append(h.Upgrades, v.String())
		return true
	})

	if h.SID == "" {
		return Handshake{}, apierrors.NewProtocolError("open frame has no sid", truncate(payload))
	}
	return h, nil
}

// ParseEvent decodes the ["name", args...] body of an EVENT packet
func ParseEvent(p Packet) (Event, error) {
	if p.Type != PacketEvent {
		return Event{}, apierrors.NewProtocolError(fmt.Sprintf("expected EVENT, got %s", p.Type), "")
	}

	parsed := gjson.ParseBytes(p.Data)
	if !parsed.IsArray() {
		return Event{}, apierrors.NewProtocolError("event body is not an array", truncate(p.Data))
	}
	items := parsed.Array()
	if len(items) == 0 || items[0].Type != gjson.String {
		return Event{}, apierrors.NewProtocolError("event has no name", truncate(p.Data))
	}

	ev := Event{Namespace: p.Namespace, Name: items[0].String(), ID: p.ID}
	for _, item := range items[1:] {
		ev.Args = append(ev.Args, json.RawMessage(item.Raw))
	}
	return ev, nil
}

// ConnectErrorMessage extracts the reason from a CONNECT_ERROR packet.
// Servers send either {"message": "..."} or a bare string.
func ConnectErrorMessage(p Packet) string {
	if len(p.Data) == 0 {
		return "connection refused by server"
	}
	parsed := gjson.ParseBytes(p.Data)
	if parsed.Type == gjson.String {
		return parsed.String()
	}
	if msg := parsed.Get("message"); msg.Exists() {
		return msg.String()
	}
	return parsed.Raw
}

// ConnectSID extracts the session id from a CONNECT reply, if present
func ConnectSID(p Packet) string {
	if len(p.Data) == 0 {
		return ""
	}
	return gjson.GetBytes(p.Data, "sid").String()
}

func truncate(data []byte) string {
	const limit = 64
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
