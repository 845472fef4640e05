// ABOUTME: Entry point for the development dialog backend
// ABOUTME: Parses CLI flags and serves tone-speech responses to dialog clients
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/dialog-go/internal/backend"
	"github.com/Resonate-Protocol/dialog-go/internal/config"
)

var (
	port     = flag.Int("port", 8928, "WebSocket server port")
	name     = flag.String("name", "", "Backend friendly name (default: hostname-dialog-backend)")
	path     = flag.String("path", "/dialog", "WebSocket path")
	token    = flag.String("token", "", "Require this bearer token from clients")
	logFile  = flag.String("log-file", "dialog-backend.log", "Log file path")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	noMDNS   = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	logger := config.SetupLogging(config.LoggingConfig{Level: *logLevel}, io.MultiWriter(os.Stdout, f))

	backendName := *name
	if backendName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		backendName = fmt.Sprintf("%s-dialog-backend", hostname)
	}

	logger.Info("starting dialog backend", "name", backendName, "port", *port, "log_file", *logFile)

	srv := backend.New(backend.Config{
		Port:       *port,
		Name:       backendName,
		Path:       *path,
		EnableMDNS: !*noMDNS,
		Token:      *token,
		Logger:     logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
