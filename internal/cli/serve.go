package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/server"
)

var (
	serveAddr  string
	serveStore string
	servePath  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference backend",
	Long: `serve starts the HTTP backend the client talks to: the index page,
the totals feed, and the mutation endpoints for both lists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":5000", "listen address")
	serveCmd.Flags().StringVar(&serveStore, "store", "memory", "storage backend: memory, file, or sqlite")
	serveCmd.Flags().StringVar(&servePath, "path", "tally.db", "data file for the file and sqlite stores")
}

func openStore() (server.Store, error) {
	switch serveStore {
	case "memory":
		return server.NewMemoryStore(), nil
	case "file":
		return server.OpenFileStore(servePath)
	case "sqlite":
		return server.OpenSQLite(servePath)
	}
	return nil, fmt.Errorf("unknown store %q", serveStore)
}

func runServe(ctx context.Context) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := server.New(store, log)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              serveAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", serveAddr, "store", serveStore)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
