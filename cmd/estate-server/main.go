// Command estate-server serves the estate catalog over newline-delimited
// JSON-RPC on stdio. It is normally spawned as a subprocess by estate-chat,
// but can be driven by hand for debugging:
//
//	echo '{"jsonrpc":"2.0","id":1,"method":"tools/list"}' | estate-server
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/estatemcp/estatemcp/estate"
	"github.com/estatemcp/estatemcp/mcp"
)

func main() {
	log := logrus.New()
	// stdout carries the wire protocol; all logging goes to stderr.
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	registry, err := estate.NewRegistry(estate.NewCatalog())
	if err != nil {
		log.WithError(err).Fatal("failed to build tool registry")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(registry, mcp.ServerConfig{
		Logger:        log,
		ServerName:    "estate-server",
		ServerVersion: "0.1.0",
	})
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("server stopped")
	}
}
