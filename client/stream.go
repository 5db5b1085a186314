package client

import (
	"errors"

	"github.com/NXWeb-Group/wisp-client-go/types"
)

var ErrStreamClosed = errors.New("stream not open")

// Stream is one logical connection multiplexed over a Connection. All of
// its mutable state is guarded by the owning connection's mutex.
type Stream struct {
	conn       *Connection
	id         uint32
	hostname   string
	port       uint16
	streamType types.STREAM_TYPE
	handler    StreamHandler

	credit      int64
	creditKnown bool
	queue       [][]byte
	// open is the connection's connected flag at creation time. It is never
	// updated afterwards, so streams created before the handshake completes
	// are not flow controlled.
	open   bool
	closed bool
}

func (s *Stream) ID() uint32 { return s.id }

func (s *Stream) Hostname() string { return s.hostname }

func (s *Stream) Port() uint16 { return s.port }

func (s *Stream) Type() types.STREAM_TYPE { return s.streamType }

func (s *Stream) Connection() *Connection { return s.conn }

// Credit returns the remaining send credit. The second result is false
// until the stream has seen any credit value.
func (s *Stream) Credit() (int64, bool) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.credit, s.creditKnown
}

// Queued returns the number of sends waiting for credit.
func (s *Stream) Queued() int {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return len(s.queue)
}

func (s *Stream) Closed() bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.closed
}

// Send transmits data as a DATA packet or queues it until the server grants
// more credit. It never blocks waiting for credit.
func (s *Stream) Send(data []byte) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return s.sendLocked(append([]byte(nil), data...))
}

func (s *Stream) sendLocked(data []byte) error {
	// udp is never buffered
	if s.credit > 0 || !s.open || s.streamType == types.UDP {
		return s.writeDataLocked(data)
	}
	s.queue = append(s.queue, data)
	s.conn.metrics.queued()
	return nil
}

// writeDataLocked sends one DATA packet. Credit is only spent once the
// transport has accepted it.
func (s *Stream) writeDataLocked(data []byte) error {
	err := s.conn.writePacketLocked(types.Packet{
		StreamID: s.id,
		Payload:  types.Data{Body: data},
	})
	if err != nil {
		return err
	}
	s.credit--
	s.creditKnown = true
	return nil
}

// continueReceived applies a CONTINUE and drains as much of the queue as the
// new credit allows. On a write failure the unsent payload stays at the head
// of the queue for the next CONTINUE.
func (s *Stream) continueReceived(bufferRemaining uint32) error {
	s.credit = int64(bufferRemaining)
	s.creditKnown = true
	for s.credit > 0 && len(s.queue) > 0 {
		if err := s.writeDataLocked(s.queue[0]); err != nil {
			return err
		}
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
	return nil
}

// Close closes the stream with CloseReasonUnspecified.
func (s *Stream) Close() error {
	return s.CloseWithReason(types.CloseReasonUnspecified)
}

// CloseWithReason sends a CLOSE packet and retires the stream. The stream's
// OnClose is not called.
func (s *Stream) CloseWithReason(reason types.CloseReason) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	err := s.conn.writePacketLocked(types.Packet{
		StreamID: s.id,
		Payload:  types.Close{Reason: reason},
	})
	s.conn.removeStreamLocked(s, closedByLocal)
	return err
}

func (s *Stream) retireLocked() {
	s.closed = true
	s.open = false
	s.queue = nil
}
