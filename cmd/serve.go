package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/editor-relay/internal/adapters/httpapi"
	relayotel "github.com/bnema/editor-relay/internal/platform/otel"
	"github.com/bnema/editor-relay/internal/version"
	"github.com/spf13/cobra"
)

const serviceName = "editor-relay"

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, a, serveOptions{listen: listen, out: cmd.OutOrStdout()})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from server.listen)")

	return cmd
}

type serveOptions struct {
	listen string
	out    io.Writer
	// ready is called once the listener is bound.
	ready func(net.Addr)
}

func runServe(ctx context.Context, a *app, opts serveOptions) (err error) {
	cfg := a.cfg.Server
	addr := cfg.Listen
	if opts.listen != "" {
		addr = opts.listen
	}

	shutdownTracing, err := relayotel.Setup(ctx, relayotel.Options{
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		Endpoint:       a.cfg.OTel.Endpoint,
		Enabled:        a.cfg.OTel.Enabled,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, shutdownTracing(flushCtx))
	}()

	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeStore()) }()

	relay := a.newRelay(store)
	restored, err := relay.Restore(ctx)
	if err != nil {
		relay.Close()
		return fmt.Errorf("restore sessions: %w", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		relay.Close()
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	server := &http.Server{
		Handler: httpapi.NewRouter(relay, httpapi.Options{
			Logger:       a.logger,
			MaxBodyBytes: cfg.MaxBodyBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// Long enough for a full wait plus the response.
		WriteTimeout: cfg.WaitTimeout + 10*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go relay.RunSweeper(sweepCtx, cfg.SweepInterval)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	a.logger.Info("relay listening",
		"addr", listener.Addr().String(),
		"store", a.cfg.Store.Driver,
		"restored", restored,
		"wait_timeout", cfg.WaitTimeout,
		"idle_timeout", cfg.IdleTimeout,
	)
	if opts.out != nil {
		_, _ = fmt.Fprintf(opts.out, "relay listening on %s\n", listener.Addr())
	}
	if opts.ready != nil {
		opts.ready(listener.Addr())
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		relay.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}

	a.logger.Info("shutting down", "grace", cfg.ShutdownGrace)
	return shutdown(server, relay, cfg.ShutdownGrace)
}

type closer interface {
	Close()
}

// shutdown lets in-flight requests, long polls included, finish within grace.
// Waits still held after that are released as empty so clients retry
// elsewhere.
func shutdown(server *http.Server, relay closer, grace time.Duration) error {
	graceCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	err := server.Shutdown(graceCtx)
	relay.Close()
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	finalCtx, cancelFinal := context.WithTimeout(context.Background(), time.Second)
	defer cancelFinal()
	if err := server.Shutdown(finalCtx); err != nil {
		return errors.Join(fmt.Errorf("shutdown: %w", err), server.Close())
	}
	return nil
}
