package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/NXWeb-Group/wisp-client-go/types"
	"github.com/NXWeb-Group/wisp-client-go/utils"
)

const testURL = "ws://wisp.test/wisp/"

var errTest = errors.New("test transport failure")

// fakeTransport records outbound messages. Inbound messages are fed to the
// connection directly by the tests; ReadMessage only blocks until Close or
// fail so that teardown can be driven explicitly.
type fakeTransport struct {
	mu           sync.Mutex
	url          string
	subprotocols []string
	sent         [][]byte
	writeErr     error
	readErr      error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{closed: make(chan struct{})}
}

func (f *fakeTransport) Dial(_ context.Context, url string, subprotocols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	f.subprotocols = subprotocols
	return nil
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	<-f.closed
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return nil, net.ErrClosed
}

func (f *fakeTransport) WriteMessage(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.sent = append(f.sent, append([]byte(nil), msg...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// fail makes the pending ReadMessage return err.
func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
	f.Close()
}

// packets decodes everything written so far.
func (f *fakeTransport) packets(t *testing.T) []types.Packet {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Packet, 0, len(f.sent))
	for _, msg := range f.sent {
		p, err := utils.DecodePacket(msg)
		if err != nil {
			t.Fatalf("client sent undecodable message %x: %v", msg, err)
		}
		out = append(out, p)
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// recorder is a Handler and DiagnosticHandler that remembers every event.
type recorder struct {
	mu          sync.Mutex
	opens       int
	closes      int
	errs        []error
	packets     []types.Packet
	diagnostics []Diagnostic
}

func (r *recorder) OnOpen(*Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
}

func (r *recorder) OnClose(*Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
}

func (r *recorder) OnError(_ *Connection, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnMessage(_ *Connection, p types.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, p)
}

func (r *recorder) OnDiagnostic(_ *Connection, d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d)
}

type streamEvent struct {
	data   []byte
	reason types.CloseReason
	closed bool
}

type streamRecorder struct {
	mu     sync.Mutex
	events []streamEvent
}

func (r *streamRecorder) OnMessage(_ *Stream, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, streamEvent{data: data})
}

func (r *streamRecorder) OnClose(_ *Stream, reason types.CloseReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, streamEvent{reason: reason, closed: true})
}

func (r *streamRecorder) closes() []types.CloseReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reasons []types.CloseReason
	for _, e := range r.events {
		if e.closed {
			reasons = append(reasons, e.reason)
		}
	}
	return reasons
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConnection(t *testing.T, h Handler, opts ...Option) (*Connection, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	base := []Option{WithTransport(ft), WithLogger(discardLogger())}
	if h != nil {
		base = append(base, WithHandler(h))
	}
	c, err := Dial(context.Background(), testURL, append(base, opts...)...)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() {
		ft.Close()
		waitDone(t, c)
	})
	return c, ft
}

func waitDone(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not tear down")
	}
}

func encode(t *testing.T, p types.Packet) []byte {
	t.Helper()
	msg, err := utils.EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket() error = %v", err)
	}
	return msg
}

func continuePacket(streamID, credit uint32) types.Packet {
	return types.Packet{StreamID: streamID, Payload: types.Continue{BufferRemaining: credit}}
}

// openV1 completes a v1 handshake granting credit to new streams.
func openV1(t *testing.T, c *Connection, credit uint32) {
	t.Helper()
	c.handleMessage(encode(t, continuePacket(0, credit)))
	if !c.Connected() {
		t.Fatal("connection not connected after CONTINUE")
	}
}

func countType(packets []types.Packet, typ types.PACKET_TYPE) int {
	n := 0
	for _, p := range packets {
		if p.Type() == typ {
			n++
		}
	}
	return n
}
