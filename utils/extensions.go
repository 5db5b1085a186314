package utils

import (
	"encoding/binary"

	"github.com/NXWeb-Group/wisp-client-go/types"
)

// DefaultExtensions returns a new list advertising UDP and MOTD with empty
// client configuration.
func DefaultExtensions() []types.Extension {
	return []types.Extension{types.UDPExtension{}, types.MOTDExtension{}}
}

// SerializeExtensions writes [id:1][length:4][payload] records in list order.
func SerializeExtensions(exts []types.Extension, role types.Role) []byte {
	var data []byte
	for _, ext := range exts {
		payload := ext.Encode(role)
		var header [extensionHeader]byte
		header[0] = ext.ID()
		binary.LittleEndian.PutUint32(header[1:], uint32(len(payload)))
		data = append(data, header[:]...)
		data = append(data, payload...)
	}
	return data
}

// ParseExtensions decodes the records in data using the matching entry of
// known as the decoder. Records with ids not in known are skipped.
func ParseExtensions(data []byte, known []types.Extension, role types.Role) ([]types.Extension, error) {
	var exts []types.Extension
	offset := 0
	for offset < len(data) {
		if len(data)-offset < extensionHeader {
			return nil, &DecodeError{Op: "extension", Offset: offset, Err: ErrPayloadTooShort}
		}
		id := data[offset]
		length := binary.LittleEndian.Uint32(data[offset+1 : offset+extensionHeader])
		start := offset + extensionHeader
		if uint64(length) > uint64(len(data)-start) {
			return nil, &DecodeError{Op: "extension", Offset: start, Err: ErrPayloadTooShort}
		}
		end := start + int(length)

		if decoder := findExtension(known, id); decoder != nil {
			ext, err := decoder.Decode(role, data[start:end])
			if err != nil {
				return nil, &DecodeError{Op: "extension", Offset: start, Err: err}
			}
			exts = append(exts, ext)
		}
		offset = end
	}
	return exts, nil
}

// MatchExtensions keeps only the ids advertised by both sides.
func MatchExtensions(server, client []types.Extension) (map[uint8]types.Extension, map[uint8]types.Extension) {
	serverExts := make(map[uint8]types.Extension)
	clientExts := make(map[uint8]types.Extension)
	for _, s := range server {
		if c := findExtension(client, s.ID()); c != nil {
			serverExts[s.ID()] = s
			clientExts[c.ID()] = c
		}
	}
	return serverExts, clientExts
}

func findExtension(exts []types.Extension, id uint8) types.Extension {
	for _, ext := range exts {
		if ext.ID() == id {
			return ext
		}
	}
	return nil
}
