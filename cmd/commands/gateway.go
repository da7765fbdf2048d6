package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/corvid-labs/skillkernel/internal/config"
	"github.com/corvid-labs/skillkernel/internal/gateway"
	"github.com/corvid-labs/skillkernel/internal/heartbeat"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Start the HTTP/WebSocket gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runGateway,
	}
}

func runGateway(parentCtx context.Context, cmd *cli.Command) error {
	k, err := boot(parentCtx, cmd)
	if err != nil {
		return err
	}
	defer k.Close()

	host := k.Config.Gateway.Host
	if cmd.IsSet("host") {
		host = cmd.String("host")
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port := k.Config.Gateway.Port
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}
	if port == 0 {
		port = 18420
	}

	server := gateway.NewServer(k.Bus, k.Registry, k.Router, k.Dispatch, host, port)

	hb := heartbeat.NewWriter(filepath.Join(config.KernelPath(), "heartbeat.json"))
	hb.Start()
	defer hb.Stop()

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	slog.Info("gateway listening", "addr", server.Addr())

	select {
	case <-ctx.Done():
		slog.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
