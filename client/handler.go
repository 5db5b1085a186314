package client

import "github.com/NXWeb-Group/wisp-client-go/types"

// Handler observes connection events. Only one handler is registered per
// connection; callbacks run on the read loop goroutine with no engine locks
// held, so they may call back into the Connection or its Streams.
type Handler interface {
	OnOpen(c *Connection)
	OnClose(c *Connection)
	OnError(c *Connection, err error)
	// OnMessage is called for every decoded inbound packet before routing.
	OnMessage(c *Connection, p types.Packet)
}

// DiagnosticHandler is an optional extension of Handler that receives a
// Diagnostic for every dropped packet.
type DiagnosticHandler interface {
	OnDiagnostic(c *Connection, d Diagnostic)
}

// Handlers adapts plain functions to Handler and DiagnosticHandler. Nil
// fields are ignored.
type Handlers struct {
	Open       func(c *Connection)
	Close      func(c *Connection)
	Error      func(c *Connection, err error)
	Message    func(c *Connection, p types.Packet)
	Diagnostic func(c *Connection, d Diagnostic)
}

func (h Handlers) OnOpen(c *Connection) {
	if h.Open != nil {
		h.Open(c)
	}
}

func (h Handlers) OnClose(c *Connection) {
	if h.Close != nil {
		h.Close(c)
	}
}

func (h Handlers) OnError(c *Connection, err error) {
	if h.Error != nil {
		h.Error(c, err)
	}
}

func (h Handlers) OnMessage(c *Connection, p types.Packet) {
	if h.Message != nil {
		h.Message(c, p)
	}
}

func (h Handlers) OnDiagnostic(c *Connection, d Diagnostic) {
	if h.Diagnostic != nil {
		h.Diagnostic(c, d)
	}
}

// StreamHandler observes a single stream. OnClose fires only for closes
// initiated by the peer or by connection teardown.
type StreamHandler interface {
	OnMessage(s *Stream, data []byte)
	OnClose(s *Stream, reason types.CloseReason)
}

// StreamHandlers adapts plain functions to StreamHandler.
type StreamHandlers struct {
	Message func(s *Stream, data []byte)
	Close   func(s *Stream, reason types.CloseReason)
}

func (h StreamHandlers) OnMessage(s *Stream, data []byte) {
	if h.Message != nil {
		h.Message(s, data)
	}
}

func (h StreamHandlers) OnClose(s *Stream, reason types.CloseReason) {
	if h.Close != nil {
		h.Close(s, reason)
	}
}

// DropReason classifies a dropped inbound packet.
type DropReason string

const (
	DropShortFrame       DropReason = "short_frame"
	DropMalformed        DropReason = "malformed"
	DropUnknownStream    DropReason = "unknown_stream"
	DropUnexpectedPacket DropReason = "unexpected_packet"
	DropInvalidInfo      DropReason = "invalid_info"
)

// Diagnostic describes a packet that was dropped instead of processed.
type Diagnostic struct {
	Reason     DropReason
	StreamID   uint32
	PacketType types.PACKET_TYPE
	Err        error
}
