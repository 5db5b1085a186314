package wisptest

import (
	"net"
	"strconv"

	"github.com/NXWeb-Group/wisp-client-go/types"
)

func (s *session) openSocket(network string, streamID uint32, connect types.Connect) {
	conn, err := s.server.cfg.Dial(network, net.JoinHostPort(connect.Host, strconv.Itoa(int(connect.Port))))
	if err != nil {
		s.logger.Debug("error connecting socket", "stream_id", streamID, "network", network, "error", err)
		s.send(types.Packet{StreamID: streamID, Payload: types.Close{Reason: types.CloseReasonUnreachable}})
		return
	}

	sock := &socket{conn: conn}
	s.mu.Lock()
	s.sockets[streamID] = sock
	s.mu.Unlock()

	go s.pump(streamID, sock)
}

// pump forwards socket reads as DATA packets until the socket fails, then
// tells the client the stream is gone unless the client closed it first.
func (s *session) pump(streamID uint32, sock *socket) {
	defer func() {
		s.mu.Lock()
		closedByClient := sock.closed
		if !closedByClient {
			delete(s.sockets, streamID)
		}
		s.mu.Unlock()
		sock.conn.Close()
		if !closedByClient {
			s.send(types.Packet{StreamID: streamID, Payload: types.Close{Reason: types.CloseReasonVoluntary}})
		}
	}()

	buffer := make([]byte, 4096)
	for {
		n, err := sock.conn.Read(buffer)
		if n > 0 {
			body := make([]byte, n)
			copy(body, buffer[:n])
			s.send(types.Packet{StreamID: streamID, Payload: types.Data{Body: body}})
		}
		if err != nil {
			return
		}
	}
}
