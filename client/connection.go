// Package client implements the client side of the Wisp protocol: the
// handshake, stream multiplexing and per-stream flow control over a single
// message transport.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NXWeb-Group/wisp-client-go/types"
	"github.com/NXWeb-Group/wisp-client-go/utils"
)

var (
	ErrInvalidEndpoint   = errors.New("wisp endpoints must end with a trailing forward slash")
	ErrUDPDisabled       = errors.New("udp is not enabled for this wisp connection")
	ErrInvalidStreamType = errors.New("invalid stream type")
	ErrConnectionClosed  = errors.New("wisp connection closed")
)

// State is the connection lifecycle state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Connection is one wisp session over one transport.
type Connection struct {
	url       string
	transport Transport
	handler   Handler
	logger    *slog.Logger
	metrics   *Metrics
	span      trace.Span

	mu            sync.Mutex
	version       uint8
	extensions    []types.Extension
	maxBufferSize uint32
	bufferKnown   bool
	streams       map[uint32]*Stream
	nextStreamID  uint32
	connected     bool
	connecting    bool
	closing       bool
	torndown      bool
	infoReceived  bool
	serverExts    map[uint8]types.Extension
	clientExts    map[uint8]types.Extension
	motd          string
	hasMOTD       bool
	udpEnabled    bool

	done chan struct{}
}

// Dial validates the endpoint, opens the transport and starts the read
// loop. The connection is usable once Handler.OnOpen fires; streams created
// earlier are sent without flow control.
func Dial(ctx context.Context, url string, opts ...Option) (*Connection, error) {
	if !strings.HasSuffix(url, "/") {
		return nil, ErrInvalidEndpoint
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Connection{
		url:          url,
		transport:    cfg.Transport,
		handler:      cfg.Handler,
		logger:       cfg.Logger.With("url", url),
		metrics:      cfg.Metrics,
		version:      cfg.Version,
		extensions:   cfg.Extensions,
		streams:      make(map[uint32]*Stream),
		nextStreamID: 1,
		serverExts:   make(map[uint8]types.Extension),
		clientExts:   make(map[uint8]types.Extension),
		udpEnabled:   true,
		done:         make(chan struct{}),
	}

	ctx, c.span = cfg.Tracer.Start(ctx, "wisp.handshake",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("wisp.url", url),
			attribute.Int("wisp.requested_version", int(cfg.Version)),
		),
	)

	var subprotocols []string
	if c.version == 2 {
		subprotocols = []string{"wisp-v2"}
	}
	if err := c.transport.Dial(ctx, url, subprotocols); err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, "dial failed")
		c.span.End()
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.connecting = true
	c.logger.Debug("wisp transport open", "version", c.version)

	go c.readLoop()
	return c, nil
}

func (c *Connection) URL() string { return c.url }

// Version returns the negotiated version, or the requested one while the
// handshake is in progress.
func (c *Connection) Version() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// MaxBufferSize returns the default credit for new streams. The second
// result is false until the server's first CONTINUE.
func (c *Connection) MaxBufferSize() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxBufferSize, c.bufferKnown
}

func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.connecting:
		return StateConnecting
	case c.connected:
		return StateConnected
	default:
		return StateDisconnected
	}
}

func (c *Connection) UDPEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.udpEnabled
}

// MOTD returns the server message of the day, if it was negotiated.
func (c *Connection) MOTD() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.motd, c.hasMOTD
}

// ServerExtensions returns the server side of the negotiated extensions.
func (c *Connection) ServerExtensions() map[uint8]types.Extension {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.serverExts)
}

// ClientExtensions returns the client side of the negotiated extensions.
func (c *Connection) ClientExtensions() map[uint8]types.Extension {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.clientExts)
}

func (c *Connection) StreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// Stream looks up an active stream.
func (c *Connection) Stream(id uint32) (*Stream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[id]
	return s, ok
}

// Done is closed after teardown has notified every observer.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close closes the transport. Teardown and the OnClose callbacks follow
// from the read loop.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	return c.transport.Close()
}

// CreateStream opens a new stream to hostname:port. handler may be nil.
// The server answers with DATA/CONTINUE on success or CLOSE on rejection.
func (c *Connection) CreateStream(hostname string, port uint16, streamType types.STREAM_TYPE, handler StreamHandler) (*Stream, error) {
	if streamType != types.TCP && streamType != types.UDP {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStreamType, streamType)
	}
	if handler == nil {
		handler = StreamHandlers{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torndown {
		return nil, ErrConnectionClosed
	}
	if streamType == types.UDP && !c.udpEnabled {
		return nil, ErrUDPDisabled
	}

	id := c.nextStreamID
	c.nextStreamID++
	s := &Stream{
		conn:        c,
		id:          id,
		hostname:    hostname,
		port:        port,
		streamType:  streamType,
		handler:     handler,
		credit:      int64(c.maxBufferSize),
		creditKnown: c.bufferKnown,
		open:        c.connected,
	}
	c.streams[id] = s
	c.metrics.streamOpened()

	err := c.writePacketLocked(types.Packet{
		StreamID: id,
		Payload: types.Connect{
			Type: streamType,
			Port: port,
			Host: hostname,
		},
	})
	if err != nil {
		c.removeStreamLocked(s, closedByLocal)
		return nil, fmt.Errorf("send connect: %w", err)
	}
	c.logger.Debug("wisp stream created", "stream_id", id, "host", hostname, "port", port, "type", streamType.String())
	return s, nil
}

// writePacketLocked writes p while c.mu is held. The transport write is
// synchronous, so a slow write also delays inbound dispatch on the read loop
// until it returns.
func (c *Connection) writePacketLocked(p types.Packet) error {
	msg, err := utils.EncodePacket(p)
	if err != nil {
		return err
	}
	if err := c.transport.WriteMessage(msg); err != nil {
		return err
	}
	c.metrics.sent(p.Type())
	return nil
}

func (c *Connection) removeStreamLocked(s *Stream, initiator string) {
	if _, ok := c.streams[s.id]; !ok {
		return
	}
	delete(c.streams, s.id)
	s.retireLocked()
	c.metrics.streamClosed(initiator)
}

func (c *Connection) readLoop() {
	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			c.teardown(err)
			return
		}
		c.handleMessage(msg)
	}
}

// handleMessage processes one inbound message. State changes happen under
// the lock; observers run afterwards.
func (c *Connection) handleMessage(msg []byte) {
	c.mu.Lock()
	events := c.dispatchLocked(msg)
	if c.connected && c.connecting {
		c.connecting = false
		events = append(events, c.openedLocked())
	}
	c.mu.Unlock()

	for _, event := range events {
		event()
	}
}

func (c *Connection) dispatchLocked(msg []byte) []func() {
	packet, err := utils.DecodePacket(msg)
	if err != nil {
		reason := DropMalformed
		if errors.Is(err, utils.ErrFrameTooShort) {
			reason = DropShortFrame
		}
		var packetType types.PACKET_TYPE
		if len(msg) > 0 {
			packetType = types.PACKET_TYPE(msg[0])
		}
		return c.dropLocked(Diagnostic{Reason: reason, PacketType: packetType, Err: err})
	}
	c.metrics.received(packet.Type())
	events := []func(){func() { c.handler.OnMessage(c, packet) }}

	if packet.StreamID == 0 && c.connecting {
		return append(events, c.handleControlLocked(packet)...)
	}

	s, ok := c.streams[packet.StreamID]
	if !ok {
		return append(events, c.dropLocked(Diagnostic{
			Reason:     DropUnknownStream,
			StreamID:   packet.StreamID,
			PacketType: packet.Type(),
		})...)
	}

	switch p := packet.Payload.(type) {
	case types.Data:
		events = append(events, func() { s.handler.OnMessage(s, p.Body) })
	case types.Continue:
		if err := s.continueReceived(p.BufferRemaining); err != nil {
			c.logger.Warn("wisp: failed to flush queued data", "stream_id", s.id, "error", err)
		}
	case types.Close:
		c.removeStreamLocked(s, closedByPeer)
		events = append(events, func() { s.handler.OnClose(s, p.Reason) })
	default:
		events = append(events, c.dropLocked(Diagnostic{
			Reason:     DropUnexpectedPacket,
			StreamID:   packet.StreamID,
			PacketType: packet.Type(),
		})...)
	}
	return events
}

func (c *Connection) dropLocked(d Diagnostic) []func() {
	c.logger.Warn("wisp: dropped packet",
		"reason", string(d.Reason),
		"stream_id", d.StreamID,
		"packet_type", d.PacketType.String(),
		"error", d.Err,
	)
	c.metrics.dropped(d.Reason)
	dh, ok := c.handler.(DiagnosticHandler)
	if !ok {
		return nil
	}
	return []func(){func() { dh.OnDiagnostic(c, d) }}
}

// teardown runs once, when the transport fails or closes.
func (c *Connection) teardown(cause error) {
	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		return
	}
	c.torndown = true
	c.connected = false
	c.connecting = false
	clean := c.closing || IsCleanClose(cause)

	ids := slices.Sorted(maps.Keys(c.streams))
	streams := make([]*Stream, 0, len(ids))
	for _, id := range ids {
		s := c.streams[id]
		c.removeStreamLocked(s, closedByTeardown)
		streams = append(streams, s)
	}
	c.endHandshakeSpanLocked(cause)
	c.mu.Unlock()

	for _, s := range streams {
		s.handler.OnClose(s, types.CloseReasonNetworkError)
	}
	if clean {
		c.logger.Info("wisp connection closed", "streams", len(streams))
		c.handler.OnClose(c)
	} else {
		c.logger.Error("wisp connection failed", "streams", len(streams), "error", cause)
		c.handler.OnError(c, cause)
	}
	close(c.done)
}
