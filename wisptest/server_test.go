package wisptest

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NXWeb-Group/wisp-client-go/types"
	"github.com/NXWeb-Group/wisp-client-go/utils"
)

func newTestServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(cfg)
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return srv, srv.WebSocketURL(hs.URL)
}

func dialRaw(t *testing.T, url string, subprotocols ...string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: subprotocols, HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn *websocket.Conn) types.Packet {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	p, err := utils.DecodePacket(msg)
	if err != nil {
		t.Fatalf("decode %x: %v", msg, err)
	}
	return p
}

func writePacket(t *testing.T, conn *websocket.Conn, p types.Packet) {
	t.Helper()
	msg, err := utils.EncodePacket(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		path string
		base string
		want string
	}{
		{"", "http://127.0.0.1:8080", "ws://127.0.0.1:8080/wisp/"},
		{"/proxy/", "https://example.com", "wss://example.com/proxy/"},
	}
	for _, tt := range tests {
		srv := NewServer(Config{Path: tt.path})
		if got := srv.WebSocketURL(tt.base); got != tt.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestV2HandshakeOrder(t *testing.T) {
	infos := make(chan types.Info, 1)
	_, url := newTestServer(t, Config{
		Version:      2,
		BufferSize:   32,
		Extensions:   []types.Extension{types.UDPExtension{}, types.MOTDExtension{Message: "hi"}},
		OnClientInfo: func(info types.Info) { infos <- info },
	})
	conn := dialRaw(t, url, "wisp-v2")

	first := readPacket(t, conn)
	info, ok := first.Payload.(types.Info)
	if !ok || first.StreamID != 0 {
		t.Fatalf("first packet = %+v, want INFO on stream 0", first)
	}
	exts, err := utils.ParseExtensions(info.Extensions, utils.DefaultExtensions(), types.RoleServer)
	if err != nil {
		t.Fatalf("ParseExtensions() error = %v", err)
	}
	if len(exts) != 2 {
		t.Fatalf("server advertised %d extensions, want 2", len(exts))
	}
	if motd, ok := exts[1].(types.MOTDExtension); !ok || motd.Message != "hi" {
		t.Errorf("motd extension = %+v", exts[1])
	}

	writePacket(t, conn, types.Packet{StreamID: 0, Payload: types.Info{
		MajorVer:   2,
		Extensions: utils.SerializeExtensions(utils.DefaultExtensions(), types.RoleClient),
	}})

	next := readPacket(t, conn)
	cont, ok := next.Payload.(types.Continue)
	if !ok || next.StreamID != 0 || cont.BufferRemaining != 32 {
		t.Fatalf("packet after client INFO = %+v, want CONTINUE(32) on stream 0", next)
	}
	select {
	case got := <-infos:
		if got.MajorVer != 2 {
			t.Errorf("client info version = %d", got.MajorVer)
		}
	case <-time.After(time.Second):
		t.Error("OnClientInfo not called")
	}
}

func TestV1SendsContinueFirst(t *testing.T) {
	_, url := newTestServer(t, Config{Version: 1, BufferSize: 8})
	conn := dialRaw(t, url)

	p := readPacket(t, conn)
	cont, ok := p.Payload.(types.Continue)
	if !ok || p.StreamID != 0 || cont.BufferRemaining != 8 {
		t.Fatalf("first packet = %+v, want CONTINUE(8) on stream 0", p)
	}
}

func TestV2WithoutSubprotocolFallsBack(t *testing.T) {
	_, url := newTestServer(t, Config{Version: 2})
	conn := dialRaw(t, url)

	if p := readPacket(t, conn); p.Type() != types.CONTINUE {
		t.Fatalf("first packet type = %v, want CONTINUE", p.Type())
	}
}

func TestConnectUnreachable(t *testing.T) {
	_, url := newTestServer(t, Config{
		Version: 1,
		Dial: func(network, address string) (net.Conn, error) {
			return nil, errors.New("refused")
		},
	})
	conn := dialRaw(t, url)
	readPacket(t, conn)

	writePacket(t, conn, types.Packet{StreamID: 1, Payload: types.Connect{Type: types.TCP, Port: 80, Host: "example.com"}})

	p := readPacket(t, conn)
	cl, ok := p.Payload.(types.Close)
	if !ok || p.StreamID != 1 || cl.Reason != types.CloseReasonUnreachable {
		t.Fatalf("packet = %+v, want CLOSE(unreachable) on stream 1", p)
	}
}

func TestConnectUDPBlockedWithoutExtension(t *testing.T) {
	_, url := newTestServer(t, Config{Version: 2})
	conn := dialRaw(t, url, "wisp-v2")
	readPacket(t, conn)
	writePacket(t, conn, types.Packet{StreamID: 0, Payload: types.Info{MajorVer: 2}})
	readPacket(t, conn)

	writePacket(t, conn, types.Packet{StreamID: 1, Payload: types.Connect{Type: types.UDP, Port: 53, Host: "127.0.0.1"}})

	p := readPacket(t, conn)
	cl, ok := p.Payload.(types.Close)
	if !ok || cl.Reason != types.CloseReasonBlocked {
		t.Fatalf("packet = %+v, want CLOSE(blocked)", p)
	}
}

func TestDataGrantsCredit(t *testing.T) {
	client, remote := net.Pipe()
	defer remote.Close()
	go func() { _, _ = io.Copy(io.Discard, remote) }()

	_, url := newTestServer(t, Config{
		Version:    1,
		BufferSize: 4,
		Dial: func(network, address string) (net.Conn, error) {
			return client, nil
		},
	})
	conn := dialRaw(t, url)
	readPacket(t, conn)

	writePacket(t, conn, types.Packet{StreamID: 7, Payload: types.Connect{Type: types.TCP, Port: 1, Host: "pipe"}})
	writePacket(t, conn, types.Packet{StreamID: 7, Payload: types.Data{Body: []byte("a")}})
	writePacket(t, conn, types.Packet{StreamID: 7, Payload: types.Data{Body: []byte("b")}})

	p := readPacket(t, conn)
	cont, ok := p.Payload.(types.Continue)
	if !ok || p.StreamID != 7 || cont.BufferRemaining != 4 {
		t.Fatalf("packet = %+v, want CONTINUE(4) on stream 7", p)
	}
}

func TestCloseDropsSessions(t *testing.T) {
	srv, url := newTestServer(t, Config{Version: 1})
	conn := dialRaw(t, url)
	readPacket(t, conn)

	srv.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded after server Close")
	}
}
