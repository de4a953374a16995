package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/tui"
)

const serveShutdownGrace = 5 * time.Second

// AddServeCommand adds the serve command to the root command.
func AddServeCommand(root *cobra.Command) {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only dashboard HTTP API",
		Long: `Serve the dashboard HTTP API over the configured storage roots.

Routes: GET /api/health, GET /api/experiments, GET /api/experiments/{namespace}/{hash},
GET /api/stats. The server is read-only: it never locks or mutates storage.

Examples:
  furu serve
  furu serve --addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, _ := cmd.Flags().GetString("root")
			return runServe(cmd, os.Stdout, root, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8787", "address to listen on")
	AddRootFlag(cmd)
	root.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, w io.Writer, root, addr string) error {
	tui.CheckNoColor()
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	srv := dashboard.NewServer(cfg, Logger())

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	out.Info(fmt.Sprintf("Serving dashboard API on %s", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	ctx := cmd.Context()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
