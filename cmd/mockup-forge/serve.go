package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	mockupforge "github.com/menta2k/mockup-forge"
	"github.com/menta2k/mockup-forge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mockup preview server",
	Long: `Start an HTTP server that renders single mockups on demand.

Previews are returned directly and never touch the ledger or the output
directory.

Endpoints:
  GET  /health                   health check
  GET  /api/v1/mockups           configured mockup sets
  POST /api/v1/mockups/{name}    render the design in the request body
                                 (?filename=cat.png names the output,
                                  ?debug=1 returns a PNG with the frame outlined)

Examples:
  # Start server on default port 8080
  mockup-forge serve

  # Preview a design
  curl --data-binary @cat.png -o tee.webp localhost:8080/api/v1/mockups/Tee`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 60*time.Second, "request timeout")

	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	forge, err := openForge(logger, mockupforge.Options{KeepInputs: true})
	if err != nil {
		return err
	}

	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")
	addr := fmt.Sprintf("%s:%d", bind, port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewServer(forge, mockupforge.Version, logger).Router(timeout),
		ReadTimeout:  timeout,
		WriteTimeout: timeout + 5*time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting preview server", "addr", addr, "mockups", len(forge.Mockups()))

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
