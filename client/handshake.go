package client

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/NXWeb-Group/wisp-client-go/types"
	"github.com/NXWeb-Group/wisp-client-go/utils"
)

// handleControlLocked runs the handshake for packets on stream 0 while the
// connection is still connecting.
func (c *Connection) handleControlLocked(packet types.Packet) []func() {
	switch p := packet.Payload.(type) {
	case types.Continue:
		c.maxBufferSize = p.BufferRemaining
		c.bufferKnown = true
		c.connected = true
		// a CONTINUE before any INFO means the server only speaks v1
		if !c.infoReceived {
			c.version = 1
		}
		return nil

	case types.Info:
		if c.version != 2 {
			return nil
		}
		serverExts, err := utils.ParseExtensions(p.Extensions, c.extensions, types.RoleServer)
		if err != nil {
			return c.dropLocked(Diagnostic{Reason: DropInvalidInfo, PacketType: types.INFO, Err: err})
		}
		c.serverExts, c.clientExts = utils.MatchExtensions(serverExts, c.extensions)
		c.infoReceived = true

		c.motd, c.hasMOTD = "", false
		if motd, ok := c.serverExts[types.MOTDExtensionID].(types.MOTDExtension); ok {
			c.motd, c.hasMOTD = motd.Message, true
		}
		_, c.udpEnabled = c.serverExts[types.UDPExtensionID]

		err = c.writePacketLocked(types.Packet{
			StreamID: 0,
			Payload: types.Info{
				MajorVer:   c.version,
				MinorVer:   0,
				Extensions: utils.SerializeExtensions(c.extensions, types.RoleClient),
			},
		})
		if err != nil {
			c.logger.Warn("wisp: failed to send info", "error", err)
		}
		return nil

	default:
		return c.dropLocked(Diagnostic{Reason: DropUnexpectedPacket, PacketType: packet.Type()})
	}
}

// openedLocked records the completed handshake and returns the OnOpen event.
func (c *Connection) openedLocked() func() {
	c.metrics.handshake(c.version)
	if c.span != nil {
		c.span.SetAttributes(
			attribute.Int("wisp.version", int(c.version)),
			attribute.Int64("wisp.max_buffer_size", int64(c.maxBufferSize)),
			attribute.Bool("wisp.udp_enabled", c.udpEnabled),
			attribute.Bool("wisp.motd", c.hasMOTD),
		)
		c.span.SetStatus(codes.Ok, "")
		c.span.End()
		c.span = nil
	}
	c.logger.Info("wisp connection open",
		"version", c.version,
		"max_buffer_size", c.maxBufferSize,
		"udp_enabled", c.udpEnabled,
	)
	return func() { c.handler.OnOpen(c) }
}

func (c *Connection) endHandshakeSpanLocked(cause error) {
	if c.span == nil {
		return
	}
	if cause != nil {
		c.span.RecordError(cause)
	}
	c.span.SetStatus(codes.Error, "connection closed before handshake completed")
	c.span.End()
	c.span = nil
}
