package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/neural-scan/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Neural Scan API server.
Every identification request reconciles the local gallery with the remote
source of truth before matching. The derived face cache is rebuilt whenever
the gallery changes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("warm", true, "Synchronize the gallery and build the face cache at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if mustGetBool(cmd, "warm") {
		go warm(ctx, a)
	}

	server := web.NewServer(a.cfg, a.service, a.logger)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Starting Neural Scan API on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}

// warm reconciles the gallery and builds the face cache so the first probe
// does not pay for it. Failures are logged; requests retry both steps.
func warm(ctx context.Context, a *app) {
	if result, err := a.service.Sync(ctx); err != nil {
		a.logger.Warn("startup gallery sync failed", "error", err)
	} else if len(result.Failed) > 0 {
		a.logger.Warn("startup gallery sync incomplete", "failed", len(result.Failed))
	}

	if err := a.service.Warm(ctx); err != nil {
		a.logger.Warn("face cache warm-up failed", "error", err)
		return
	}
	a.logger.Info("face cache ready")
}
