// Package types holds the Wisp wire data model shared by the codec, the
// client engine and the test server.
package types

import "fmt"

// HeaderSize is the length of the fixed frame header: type (1) + stream id (4).
const HeaderSize = 5

// WispFrame is a raw frame split into header fields and undecoded payload.
type WispFrame struct {
	Type     PACKET_TYPE
	StreamID uint32
	Payload  []byte
}

type PACKET_TYPE uint8

const (
	CONNECT  PACKET_TYPE = 0x01
	DATA     PACKET_TYPE = 0x02
	CONTINUE PACKET_TYPE = 0x03
	CLOSE    PACKET_TYPE = 0x04
	INFO     PACKET_TYPE = 0x05
)

func (t PACKET_TYPE) String() string {
	switch t {
	case CONNECT:
		return "CONNECT"
	case DATA:
		return "DATA"
	case CONTINUE:
		return "CONTINUE"
	case CLOSE:
		return "CLOSE"
	case INFO:
		return "INFO"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

type STREAM_TYPE uint8

const (
	TCP STREAM_TYPE = 0x01
	UDP STREAM_TYPE = 0x02
)

func (t STREAM_TYPE) String() string {
	switch t {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return fmt.Sprintf("stream_type(0x%02x)", uint8(t))
	}
}

// ParseStreamType maps "tcp"/"udp" to a stream type.
func ParseStreamType(s string) (STREAM_TYPE, error) {
	switch s {
	case "tcp", "TCP", "":
		return TCP, nil
	case "udp", "UDP":
		return UDP, nil
	}
	return 0, fmt.Errorf("unknown stream type %q", s)
}

// CloseReason is the 8-bit code carried by CLOSE packets. Codes from the
// peer are passed through untouched.
type CloseReason uint8

// close reasons (client/server)
const (
	CloseReasonUnspecified  CloseReason = 0x01
	CloseReasonVoluntary    CloseReason = 0x02
	CloseReasonNetworkError CloseReason = 0x03
)

// close reasons (server only)
const (
	CloseReasonInvalidInfo       CloseReason = 0x41
	CloseReasonUnreachable       CloseReason = 0x42
	CloseReasonTimeout           CloseReason = 0x43
	CloseReasonConnectionRefused CloseReason = 0x44
	CloseReasonTCPTimeout        CloseReason = 0x47
	CloseReasonBlocked           CloseReason = 0x48
	CloseReasonThrottled         CloseReason = 0x49
)

// close reasons (client only)
const (
	CloseReasonClientError CloseReason = 0x81
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonUnspecified:
		return "unspecified"
	case CloseReasonVoluntary:
		return "voluntary"
	case CloseReasonNetworkError:
		return "network error"
	case CloseReasonInvalidInfo:
		return "invalid info"
	case CloseReasonUnreachable:
		return "unreachable"
	case CloseReasonTimeout:
		return "timeout"
	case CloseReasonConnectionRefused:
		return "connection refused"
	case CloseReasonTCPTimeout:
		return "tcp timeout"
	case CloseReasonBlocked:
		return "blocked"
	case CloseReasonThrottled:
		return "throttled"
	case CloseReasonClientError:
		return "client error"
	default:
		return fmt.Sprintf("close_reason(0x%02x)", uint8(r))
	}
}

// Payload is one of the five packet payload variants.
type Payload interface {
	PacketType() PACKET_TYPE
}

type Connect struct {
	Type STREAM_TYPE
	Port uint16
	Host string
}

func (Connect) PacketType() PACKET_TYPE { return CONNECT }

type Data struct {
	Body []byte
}

func (Data) PacketType() PACKET_TYPE { return DATA }

type Continue struct {
	BufferRemaining uint32
}

func (Continue) PacketType() PACKET_TYPE { return CONTINUE }

type Close struct {
	Reason CloseReason
}

func (Close) PacketType() PACKET_TYPE { return CLOSE }

// Info carries the protocol version and the serialized extension records.
type Info struct {
	MajorVer   uint8
	MinorVer   uint8
	Extensions []byte
}

func (Info) PacketType() PACKET_TYPE { return INFO }

// Packet is a decoded frame. Its type is always the type of its payload.
type Packet struct {
	StreamID uint32
	Payload  Payload
}

func (p Packet) Type() PACKET_TYPE {
	if p.Payload == nil {
		return 0
	}
	return p.Payload.PacketType()
}
