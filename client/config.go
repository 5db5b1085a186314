package client

import (
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/NXWeb-Group/wisp-client-go/types"
	"github.com/NXWeb-Group/wisp-client-go/utils"
)

const tracerName = "github.com/NXWeb-Group/wisp-client-go/client"

var ErrUnsupportedVersion = errors.New("wisp version must be 1 or 2")

// Config holds the connection configuration.
type Config struct {
	Version    uint8             // Requested protocol version, 1 or 2
	Extensions []types.Extension // Advertised extensions; nil means UDP+MOTD on v2
	Logger     *slog.Logger      // Logger for protocol anomalies and lifecycle
	Handler    Handler           // Connection observer
	Transport  Transport         // Message transport (default: websocket)
	Header     http.Header       // Extra headers for the default transport
	Metrics    *Metrics          // Optional Prometheus collectors
	Tracer     trace.Tracer      // Tracer for the handshake span
}

// Option configures a Connection.
type Option func(*Config)

// WithVersion sets the requested wisp version.
func WithVersion(version uint8) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithExtensions replaces the advertised extension list.
func WithExtensions(exts ...types.Extension) Option {
	return func(c *Config) {
		c.Extensions = append([]types.Extension{}, exts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithHandler sets the connection observer.
func WithHandler(h Handler) Option {
	return func(c *Config) {
		c.Handler = h
	}
}

// WithTransport replaces the websocket transport.
func WithTransport(t Transport) Option {
	return func(c *Config) {
		c.Transport = t
	}
}

// WithHeader sets request headers used by the default transport.
func WithHeader(h http.Header) Option {
	return func(c *Config) {
		c.Header = h
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = t
	}
}

// DefaultConfig returns a Config requesting wisp v2.
func DefaultConfig() Config {
	return Config{
		Version: 2,
		Logger:  slog.Default(),
		Tracer:  otel.Tracer(tracerName),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Version == 0 {
		c.Version = 2
	}
	if c.Version != 1 && c.Version != 2 {
		return ErrUnsupportedVersion
	}
	if c.Version == 2 && c.Extensions == nil {
		c.Extensions = utils.DefaultExtensions()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Handler == nil {
		c.Handler = Handlers{}
	}
	if c.Transport == nil {
		c.Transport = NewWebSocketTransport(c.Header)
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	return nil
}
