package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/NXWeb-Group/wisp-client-go/client"
	"github.com/NXWeb-Group/wisp-client-go/types"
)

func connectCmd() *cobra.Command {
	var (
		configPath string
		url        string
		wispVer    uint8
		network    string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "connect <host> <port>",
		Short: "Open a stream and copy stdin/stdout through it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prof, err := loadProfile(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("url") || prof.URL == "" {
				prof.URL = url
			}
			if cmd.Flags().Changed("wisp-version") || prof.Version == 0 {
				prof.Version = wispVer
			}
			if cmd.Flags().Changed("log-level") || prof.LogLevel == "" {
				prof.LogLevel = logLevel
			}
			port, err := strconv.ParseUint(args[1], 10, 16)
			if err != nil {
				return fmt.Errorf("invalid port %q", args[1])
			}
			streamType, err := types.ParseStreamType(network)
			if err != nil {
				return err
			}
			return runConnect(cmd, prof, args[0], uint16(port), streamType)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML profile")
	cmd.Flags().StringVarP(&url, "url", "u", "ws://localhost:8080/wisp/", "wisp endpoint (must end with /)")
	cmd.Flags().Uint8Var(&wispVer, "wisp-version", 2, "wisp protocol version (1 or 2)")
	cmd.Flags().StringVarP(&network, "type", "t", "tcp", "stream type (tcp or udp)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")

	return cmd
}

func runConnect(cmd *cobra.Command, prof profile, host string, port uint16, streamType types.STREAM_TYPE) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger := newLogger(prof.LogLevel)
	stderr := cmd.ErrOrStderr()
	stdout := cmd.OutOrStdout()

	opened := make(chan struct{})
	var connErr error
	opts := []client.Option{
		client.WithVersion(prof.Version),
		client.WithLogger(logger),
		client.WithHandler(client.Handlers{
			Open: func(c *client.Connection) {
				close(opened)
			},
			Error: func(c *client.Connection, err error) {
				connErr = err
			},
		}),
	}
	exts, err := prof.extensions()
	if err != nil {
		return err
	}
	if exts != nil {
		opts = append(opts, client.WithExtensions(exts...))
	}

	conn, err := client.Dial(ctx, prof.URL, opts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	select {
	case <-opened:
	case <-conn.Done():
		return errors.Join(errors.New("connection closed during handshake"), connErr)
	case <-ctx.Done():
		return ctx.Err()
	}

	if motd, ok := conn.MOTD(); ok {
		fmt.Fprintf(stderr, "motd: %s\n", motd)
	}
	logger.Info("connected", "version", conn.Version(), "udp_enabled", conn.UDPEnabled())

	streamDone := make(chan types.CloseReason, 1)
	stream, err := conn.CreateStream(host, port, streamType, client.StreamHandlers{
		Message: func(s *client.Stream, data []byte) {
			_, _ = stdout.Write(data)
		},
		Close: func(s *client.Stream, reason types.CloseReason) {
			streamDone <- reason
		},
	})
	if err != nil {
		return err
	}

	go copyToStream(cmd.InOrStdin(), stream)

	select {
	case reason := <-streamDone:
		if reason != types.CloseReasonVoluntary {
			return fmt.Errorf("stream closed: %s", reason)
		}
		return nil
	case <-conn.Done():
		return connErr
	case <-ctx.Done():
		_ = stream.Close()
		return nil
	}
}

func copyToStream(r io.Reader, stream *client.Stream) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if sendErr := stream.Send(buf[:n]); sendErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
