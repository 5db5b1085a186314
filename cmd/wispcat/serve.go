package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/NXWeb-Group/wisp-client-go/types"
	"github.com/NXWeb-Group/wisp-client-go/wisptest"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		wispVer    uint8
		motd       string
		noUDP      bool
		bufferSize uint32
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local wisp server for testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)

			var exts []types.Extension
			if !noUDP {
				exts = append(exts, types.UDPExtension{})
			}
			if motd != "" {
				exts = append(exts, types.MOTDExtension{Message: motd})
			}
			srv := wisptest.NewServer(wisptest.Config{
				Version:    wispVer,
				Extensions: exts,
				BufferSize: bufferSize,
				Logger:     logger,
			})

			logger.Info("starting wisp server", "addr", addr, "version", wispVer)
			return http.ListenAndServe(addr, srv)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().Uint8Var(&wispVer, "wisp-version", 2, "wisp protocol version (1 or 2)")
	cmd.Flags().StringVar(&motd, "motd", "", "message of the day sent to v2 clients")
	cmd.Flags().BoolVar(&noUDP, "no-udp", false, "do not advertise udp support")
	cmd.Flags().Uint32Var(&bufferSize, "buffer-size", 127, "per-stream credit")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	return cmd
}
