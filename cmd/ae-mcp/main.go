// Package main provides the ae-mcp binary, the MCP companion that forwards
// agent tool calls to the After Effects bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/slighter12/ae-bridge-go/agent"
	"github.com/slighter12/ae-bridge-go/bridgeclient"
	"github.com/slighter12/ae-bridge-go/logger"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	transport string
	port      int
	bridgeURL string
	module    string
	logLevel  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "ae-mcp",
	Short:        "MCP server exposing After Effects bridge tools",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	defaultURL := os.Getenv("AE_BRIDGE_URL")
	if defaultURL == "" {
		defaultURL = bridgeclient.DefaultBaseURL
	}
	rootCmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve: stdio or http")
	rootCmd.Flags().IntVar(&port, "port", 8000, "Port for the http transport")
	rootCmd.Flags().StringVar(&bridgeURL, "bridge-url", defaultURL, "Base URL of the After Effects bridge")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	// The bridge supervisor launches companions as "-m <module>".
	rootCmd.Flags().StringVarP(&module, "module", "m", "", "Ignored; accepted for launcher compatibility")
	_ = rootCmd.Flags().MarkHidden("module")
}

func run(cmd *cobra.Command, args []string) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unsupported transport %q: use stdio or http", transport)
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	if err := logger.Init(logger.GetLevelFromString(logLevel), logger.FormatText); err != nil {
		return err
	}

	s := agent.NewServer(bridgeclient.New(bridgeURL), version)
	logger.Info("Starting MCP companion", "transport", transport, "bridge_url", bridgeURL)

	if transport == "stdio" {
		return server.ServeStdio(s)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := server.NewStreamableHTTPServer(s)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(addr)
	}()
	logger.Info("MCP http transport listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
