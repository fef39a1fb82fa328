package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/busgate/internal/catalog"
	"github.com/ppiankov/busgate/internal/config"
	"github.com/ppiankov/busgate/internal/logging"
	"github.com/ppiankov/busgate/internal/metrics"
	"github.com/ppiankov/busgate/internal/policy"
	"github.com/ppiankov/busgate/internal/profile"
)

// runtime is everything a command needs, built from configuration.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *policy.Engine
	profile *profile.Static
}

func loadRuntime(cmd *cobra.Command, m *metrics.Metrics) (*runtime, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return buildRuntime(cfg, m, profile.OSEnv())
}

func buildRuntime(cfg *config.Config, m *metrics.Metrics, env profile.Env) (*runtime, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		logger.Info("config loaded", zap.String("path", cfg.Source))
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	prof, err := profile.Resolve(cfg.Profile, env)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	engine, err := policy.New(policy.Config{
		Level:           cfg.SafetyLevel,
		Catalog:         cat,
		RateLimits:      cfg.RateLimits(),
		MethodRateLimit: cfg.RateLimit.Methods,
		AuditCapacity:   cfg.Audit.Capacity,
		RedactKeys:      cfg.Audit.RedactKeys,
		Logger:          logger,
		Metrics:         m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}

	logger.Info("profile selected",
		zap.String("profile", prof.Name()),
		zap.String("init_system", prof.InitSystem()))

	return &runtime{cfg: cfg, logger: logger, engine: engine, profile: prof}, nil
}
