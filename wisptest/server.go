// Package wisptest provides a small in-process Wisp server. It proxies TCP
// and UDP streams to real sockets and is meant for integration tests and
// local experiments, not for production traffic.
package wisptest

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/NXWeb-Group/wisp-client-go/types"
	"github.com/NXWeb-Group/wisp-client-go/utils"
)

// Config configures a Server.
type Config struct {
	Version      uint8             // 1 or 2 (default 2)
	Extensions   []types.Extension // Server side extensions advertised on v2
	BufferSize   uint32            // Credit granted per stream (default 127)
	Path         string            // Endpoint path (default "/wisp/")
	Logger       *slog.Logger
	Dial         func(network, address string) (net.Conn, error)
	OnClientInfo func(info types.Info)
}

// Server accepts websocket connections and speaks wisp on them.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	router   chi.Router

	mu       sync.Mutex
	sessions map[*session]struct{}
}

func NewServer(cfg Config) *Server {
	if cfg.Version == 0 {
		cfg.Version = 2
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 127
	}
	if cfg.Path == "" {
		cfg.Path = "/wisp/"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dial == nil {
		cfg.Dial = net.Dial
	}

	s := &Server{cfg: cfg, sessions: make(map[*session]struct{})}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	if cfg.Version == 2 {
		s.upgrader.Subprotocols = []string{"wisp-v2"}
	}
	s.router = chi.NewRouter()
	s.router.HandleFunc(cfg.Path+"*", s.handleWebSocket)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// WebSocketURL turns an http(s) base URL, such as httptest.Server.URL, into
// the server's wisp endpoint.
func (s *Server) WebSocketURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + s.cfg.Path
}

// Close drops every active websocket connection without a close handshake,
// as if the server had gone away.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	sess := &session{
		server:  s,
		conn:    conn,
		sockets: make(map[uint32]*socket),
		logger:  s.cfg.Logger.With("remote", r.RemoteAddr),
		udp:     s.cfg.Version == 1,
	}
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	sess.logger.Debug("client connected", "subprotocol", conn.Subprotocol())
	sess.run()
	sess.closeAll()

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	sess.logger.Debug("client disconnected")
}

type session struct {
	server  *Server
	conn    *websocket.Conn
	wsmutex sync.Mutex
	logger  *slog.Logger
	udp     bool

	mu      sync.RWMutex
	sockets map[uint32]*socket
}

type socket struct {
	conn     net.Conn
	received uint32
	closed   bool
}

func (s *session) send(packet types.Packet) {
	msg, err := utils.EncodePacket(packet)
	if err != nil {
		s.logger.Error("failed to encode packet", "error", err)
		return
	}
	s.wsmutex.Lock()
	defer s.wsmutex.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		s.logger.Debug("failed to write packet", "error", err)
	}
}

func (s *session) sendContinue(streamID uint32) {
	s.send(types.Packet{StreamID: streamID, Payload: types.Continue{BufferRemaining: s.server.cfg.BufferSize}})
}

func (s *session) run() {
	cfg := s.server.cfg
	handshaking := false
	if cfg.Version == 2 && s.conn.Subprotocol() == "wisp-v2" {
		s.send(types.Packet{StreamID: 0, Payload: types.Info{
			MajorVer:   2,
			MinorVer:   0,
			Extensions: utils.SerializeExtensions(cfg.Extensions, types.RoleServer),
		}})
		handshaking = true
	} else {
		s.udp = true
		s.sendContinue(0)
	}

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		packet, err := utils.DecodePacket(message)
		if err != nil {
			s.logger.Warn("error decoding packet", "error", err)
			continue
		}

		switch p := packet.Payload.(type) {
		case types.Info:
			if !handshaking || packet.StreamID != 0 {
				s.logger.Warn("unexpected info packet", "stream_id", packet.StreamID)
				continue
			}
			handshaking = false
			if cfg.OnClientInfo != nil {
				cfg.OnClientInfo(p)
			}
			exts, err := utils.ParseExtensions(p.Extensions, cfg.Extensions, types.RoleClient)
			if err != nil {
				s.logger.Warn("invalid client extensions", "error", err)
			}
			for _, ext := range exts {
				if ext.ID() == types.UDPExtensionID {
					s.udp = true
				}
			}
			s.sendContinue(0)

		case types.Connect:
			s.logger.Debug("connect", "stream_id", packet.StreamID, "host", p.Host, "port", p.Port, "type", p.Type.String())
			switch p.Type {
			case types.TCP:
				s.openSocket("tcp", packet.StreamID, p)
			case types.UDP:
				if !s.udp {
					s.send(types.Packet{StreamID: packet.StreamID, Payload: types.Close{Reason: types.CloseReasonBlocked}})
					continue
				}
				s.openSocket("udp", packet.StreamID, p)
			default:
				s.send(types.Packet{StreamID: packet.StreamID, Payload: types.Close{Reason: types.CloseReasonInvalidInfo}})
			}

		case types.Data:
			s.write(packet.StreamID, p.Body)

		case types.Close:
			s.mu.Lock()
			sock, exists := s.sockets[packet.StreamID]
			if exists {
				sock.closed = true
				delete(s.sockets, packet.StreamID)
			}
			s.mu.Unlock()
			if exists {
				sock.conn.Close()
			}

		default:
			s.logger.Warn("received unexpected packet", "type", packet.Type().String())
		}
	}
}

func (s *session) write(streamID uint32, body []byte) {
	s.mu.Lock()
	sock, exists := s.sockets[streamID]
	grant := false
	if exists {
		sock.received++
		if sock.received >= max(s.server.cfg.BufferSize/2, 1) {
			sock.received = 0
			grant = true
		}
	}
	s.mu.Unlock()
	if !exists {
		s.logger.Warn("no socket found", "stream_id", streamID)
		return
	}

	if _, err := sock.conn.Write(body); err != nil {
		s.logger.Debug("error writing to socket", "stream_id", streamID, "error", err)
	}
	if grant {
		s.sendContinue(streamID)
	}
}

func (s *session) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sock := range s.sockets {
		sock.closed = true
		sock.conn.Close()
		delete(s.sockets, id)
	}
}
