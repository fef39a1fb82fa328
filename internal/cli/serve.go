package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/busgate/internal/bus"
	busmcp "github.com/ppiankov/busgate/internal/mcp"
	"github.com/ppiankov/busgate/internal/metrics"
)

var (
	serveMetricsAddr   string
	serveAuditCapacity int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	serveCmd.Flags().IntVar(&serveAuditCapacity, "audit-capacity", 0, "In-memory audit log high-water mark")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP tool server on stdio",
	Long: "Runs busgate as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes policy-gated tools: help, policy_check, audit_log, rate_limit_status,\n" +
		"status, notify, list_services, introspect, call_method, and clipboard_read and\n" +
		"clipboard_write when the profile has a clipboard adapter. Logs go to stderr.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rt, err := loadRuntime(cmd, m)
	if err != nil {
		return err
	}
	logger := rt.logger
	defer func() { _ = logger.Sync() }()

	client := bus.NewClient(logger)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("bus close failed", zap.Error(err))
		}
	}()

	srv, err := busmcp.New(busmcp.Config{
		Engine:  rt.engine,
		Profile: rt.profile,
		Bus:     bus.NewGuarded(client, logger),
		Version: version,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := rt.cfg.Metrics.Addr; addr != "" {
		metricsSrv := &http.Server{Addr: addr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Fprintln(os.Stderr, "busgate MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Safety level: %s  Profile: %s\n", rt.engine.Level(), rt.profile.Name())

	err = srv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("mcp server stopped", zap.Int("audit_records", len(rt.engine.AuditLog(0))))
	return err
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
