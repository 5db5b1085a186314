// Package utils implements the Wisp packet codec and extension registry.
// Nothing here does I/O.
package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/NXWeb-Group/wisp-client-go/types"
)

var (
	ErrFrameTooShort     = errors.New("frame shorter than header")
	ErrPayloadTooShort   = errors.New("payload too short")
	ErrUnknownPacketType = errors.New("unknown packet type")
	ErrInvalidHostname   = errors.New("hostname is not valid utf-8")
	ErrNilPayload        = errors.New("packet has no payload")
)

// Minimum payload sizes per packet type.
const (
	connectMinSize  = 3
	continueSize    = 4
	closeSize       = 1
	infoMinSize     = 2
	extensionHeader = 5
)

// DecodeError reports where decoding failed.
type DecodeError struct {
	Op     string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func SerializeFrame(frame types.WispFrame) []byte {
	data := make([]byte, types.HeaderSize, types.HeaderSize+len(frame.Payload))
	data[0] = byte(frame.Type)
	binary.LittleEndian.PutUint32(data[1:5], frame.StreamID)
	return append(data, frame.Payload...)
}

// DeserializeFrame splits the header off data. The payload aliases data.
func DeserializeFrame(data []byte) (types.WispFrame, error) {
	if len(data) < types.HeaderSize {
		return types.WispFrame{}, &DecodeError{Op: "frame", Offset: len(data), Err: ErrFrameTooShort}
	}

	frame := types.WispFrame{
		Type:     types.PACKET_TYPE(data[0]),
		StreamID: binary.LittleEndian.Uint32(data[1:5]),
		Payload:  data[5:],
	}

	return frame, nil
}

func ParseConnect(data []byte) (types.Connect, error) {
	if len(data) < connectMinSize {
		return types.Connect{}, &DecodeError{Op: "connect", Offset: len(data), Err: ErrPayloadTooShort}
	}
	host := data[3:]
	if !utf8.Valid(host) {
		return types.Connect{}, &DecodeError{Op: "connect", Offset: 3, Err: ErrInvalidHostname}
	}

	connect := types.Connect{
		Type: types.STREAM_TYPE(data[0]),
		Port: binary.LittleEndian.Uint16(data[1:3]),
		Host: string(host),
	}

	return connect, nil
}

func ParseContinue(data []byte) (types.Continue, error) {
	if len(data) < continueSize {
		return types.Continue{}, &DecodeError{Op: "continue", Offset: len(data), Err: ErrPayloadTooShort}
	}
	return types.Continue{BufferRemaining: binary.LittleEndian.Uint32(data[0:4])}, nil
}

func ParseClose(data []byte) (types.Close, error) {
	if len(data) < closeSize {
		return types.Close{}, &DecodeError{Op: "close", Offset: 0, Err: ErrPayloadTooShort}
	}
	return types.Close{Reason: types.CloseReason(data[0])}, nil
}

func ParseInfo(data []byte) (types.Info, error) {
	if len(data) < infoMinSize {
		return types.Info{}, &DecodeError{Op: "info", Offset: len(data), Err: ErrPayloadTooShort}
	}
	return types.Info{
		MajorVer:   data[0],
		MinorVer:   data[1],
		Extensions: cloneBytes(data[2:]),
	}, nil
}

// DecodePacket decodes a whole transport message into a typed packet.
// Byte slices in the result do not alias data.
func DecodePacket(data []byte) (types.Packet, error) {
	frame, err := DeserializeFrame(data)
	if err != nil {
		return types.Packet{}, err
	}

	var payload types.Payload
	switch frame.Type {
	case types.CONNECT:
		payload, err = ParseConnect(frame.Payload)
	case types.DATA:
		payload = types.Data{Body: cloneBytes(frame.Payload)}
	case types.CONTINUE:
		payload, err = ParseContinue(frame.Payload)
	case types.CLOSE:
		payload, err = ParseClose(frame.Payload)
	case types.INFO:
		payload, err = ParseInfo(frame.Payload)
	default:
		err = &DecodeError{Op: "frame", Offset: 0, Err: fmt.Errorf("%w 0x%02x", ErrUnknownPacketType, uint8(frame.Type))}
	}
	if err != nil {
		return types.Packet{}, err
	}

	return types.Packet{StreamID: frame.StreamID, Payload: payload}, nil
}

// EncodePacket is the inverse of DecodePacket.
func EncodePacket(packet types.Packet) ([]byte, error) {
	var body []byte
	switch p := packet.Payload.(type) {
	case types.Connect:
		body = make([]byte, connectMinSize, connectMinSize+len(p.Host))
		body[0] = byte(p.Type)
		binary.LittleEndian.PutUint16(body[1:3], p.Port)
		body = append(body, p.Host...)
	case types.Data:
		body = p.Body
	case types.Continue:
		body = make([]byte, continueSize)
		binary.LittleEndian.PutUint32(body, p.BufferRemaining)
	case types.Close:
		body = []byte{byte(p.Reason)}
	case types.Info:
		body = make([]byte, infoMinSize, infoMinSize+len(p.Extensions))
		body[0] = p.MajorVer
		body[1] = p.MinorVer
		body = append(body, p.Extensions...)
	case nil:
		return nil, ErrNilPayload
	default:
		return nil, fmt.Errorf("%w %T", ErrUnknownPacketType, p)
	}

	return SerializeFrame(types.WispFrame{
		Type:     packet.Type(),
		StreamID: packet.StreamID,
		Payload:  body,
	}), nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
