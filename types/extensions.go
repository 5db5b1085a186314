package types

import (
	"errors"
	"unicode/utf8"
)

// Role says which side of the connection an extension payload belongs to.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

const (
	UDPExtensionID  uint8 = 0x01
	MOTDExtensionID uint8 = 0x04
)

var ErrInvalidMOTD = errors.New("motd is not valid utf-8")

// Extension is an independently negotiated capability. Encode and Decode
// handle the opaque payload of one side of the negotiation.
type Extension interface {
	ID() uint8
	Encode(role Role) []byte
	Decode(role Role, payload []byte) (Extension, error)
}

// UDPExtension advertises UDP stream support. It has no payload.
type UDPExtension struct{}

func (UDPExtension) ID() uint8 { return UDPExtensionID }

func (UDPExtension) Encode(Role) []byte { return nil }

func (UDPExtension) Decode(Role, []byte) (Extension, error) { return UDPExtension{}, nil }

// MOTDExtension carries the server message of the day. The client side
// payload is always empty.
type MOTDExtension struct {
	Message string
}

func (MOTDExtension) ID() uint8 { return MOTDExtensionID }

func (e MOTDExtension) Encode(role Role) []byte {
	if role == RoleClient {
		return nil
	}
	return []byte(e.Message)
}

func (MOTDExtension) Decode(role Role, payload []byte) (Extension, error) {
	if role == RoleClient {
		return MOTDExtension{}, nil
	}
	if !utf8.Valid(payload) {
		return nil, ErrInvalidMOTD
	}
	return MOTDExtension{Message: string(payload)}, nil
}

// OpaqueExtension is an extension the engine does not interpret. The same
// payload is sent for both roles and the peer's payload is kept verbatim.
type OpaqueExtension struct {
	Id   uint8
	Data []byte
}

func (e OpaqueExtension) ID() uint8 { return e.Id }

func (e OpaqueExtension) Encode(Role) []byte { return e.Data }

func (e OpaqueExtension) Decode(_ Role, payload []byte) (Extension, error) {
	data := make([]byte, len(payload))
	copy(data, payload)
	return OpaqueExtension{Id: e.Id, Data: data}, nil
}
