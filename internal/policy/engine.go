// Package policy decides whether desktop bus operations may run.
//
// An Engine combines the method catalog, the configured safety level, the
// active system profile and a per-key rate limiter, and writes every
// decision to its audit log. Denials are returned as model.Decision values;
// an Engine never reports a refused operation as an error.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/busgate/internal/audit"
	"github.com/ppiankov/busgate/internal/catalog"
	"github.com/ppiankov/busgate/internal/metrics"
	"github.com/ppiankov/busgate/internal/model"
	"github.com/ppiankov/busgate/internal/profile"
	"github.com/ppiankov/busgate/internal/ratelimit"
)

// Engine is safe for concurrent use. Its level and catalog are fixed at
// construction.
type Engine struct {
	id        string
	level     catalog.Level
	catalog   *catalog.Catalog
	limiter   *ratelimit.Limiter
	audit     *audit.Log
	forbidden map[string]bool
	methodRL  bool
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New builds an Engine. It fails only on unusable rate limit settings;
// catalog problems are caught when the catalog itself is built.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.Default()
	}

	var rlOpts []ratelimit.Option
	if cfg.Clock != nil {
		rlOpts = append(rlOpts, ratelimit.WithClock(cfg.Clock))
	}
	limiter, err := ratelimit.New(cfg.rateLimits(), rlOpts...)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	id := uuid.NewString()
	auditOpts := []audit.Option{
		audit.WithInstanceID(id),
		audit.WithCatalogHash(cat.Hash()),
		audit.WithRedactKeys(cfg.RedactKeys),
		audit.WithLogger(logger),
	}
	if cfg.AuditCapacity > 0 {
		auditOpts = append(auditOpts, audit.WithCapacity(cfg.AuditCapacity))
	}
	if cfg.Clock != nil {
		auditOpts = append(auditOpts, audit.WithClock(cfg.Clock))
	}

	forbidden := make(map[string]bool)
	for _, t := range cfg.forbiddenTools() {
		forbidden[t] = true
	}

	e := &Engine{
		id:        id,
		level:     ResolveLevel(cfg.Level, logger),
		catalog:   cat,
		limiter:   limiter,
		audit:     audit.New(auditOpts...),
		forbidden: forbidden,
		methodRL:  cfg.MethodRateLimit,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
	logger.Info("policy engine ready",
		zap.String("instance_id", id),
		zap.String("safety_level", e.level.String()),
		zap.String("catalog_hash", cat.Hash()))
	return e, nil
}

// CheckOperation gates a coarse tool invocation such as "clipboard.write".
//
// Order (must not be changed):
//  1. Profile: the tool's namespace is disabled in the active profile
//  2. Privileged init: system tools need systemd when the profile says so
//  3. Forbidden tool list
//  4. Rate limit, keyed by tool name
//  5. Allow
//
// A nil profile skips steps 1 and 2.
func (e *Engine) CheckOperation(tool string, args map[string]any, prof profile.Profile) model.Decision {
	d := e.checkOperation(tool, prof)
	e.finish(metrics.EntryOperation, tool, args, d)
	return d
}

func (e *Engine) checkOperation(tool string, prof profile.Profile) model.Decision {
	namespace, _, _ := strings.Cut(tool, ".")

	if prof != nil {
		if enabled, listed := prof.AvailableCategories()[namespace]; listed && !enabled {
			return model.Deny(model.ProfileUnavailable,
				fmt.Sprintf("tool category %q is not available in profile %q", namespace, prof.Name()))
		}
		if namespace == "system" && prof.RequiresPrivilegedInit() && prof.InitSystem() != profile.InitSystemd {
			return model.Deny(model.ProfileUnavailable, "system tools require systemd")
		}
	}

	if e.forbidden[tool] {
		return model.Deny(model.Forbidden, fmt.Sprintf("tool %q is forbidden", tool))
	}

	if res := e.limiter.Check(tool); res.Exceeded {
		return model.Deny(model.RateLimited, res.Reason)
	}

	return model.Allow(fmt.Sprintf("tool %q allowed", tool))
}

// CheckMethod gates a raw bus call to method on iface at service.
// The method name is classified against the catalog (with the service's
// literal exceptions) and the category is authorized at the engine's level.
func (e *Engine) CheckMethod(service, iface, method string, args map[string]any) model.Decision {
	key := MethodKey(service, iface, method)
	d := e.Classify(service, method)

	if d.Allowed && e.methodRL {
		if res := e.limiter.Check(key); res.Exceeded {
			d = model.Decision{
				Verdict:  model.RateLimited,
				Reason:   res.Reason,
				Category: d.Category,
				Tier:     d.Tier,
			}
		}
	}

	e.finish(metrics.EntryMethod, key, args, d)
	return d
}

// Classify answers what CheckMethod would decide on classification and
// level alone. It records nothing and consumes no rate limit.
func (e *Engine) Classify(service, method string) model.Decision {
	cat, ok := e.catalog.ClassifyCall(service, method)
	if !ok {
		return model.Deny(model.Uncategorized, fmt.Sprintf("method %q is not in any category", method))
	}
	return Authorize(&cat, e.level)
}

// IsMethodAllowed is CheckMethod reduced to its answer.
func (e *Engine) IsMethodAllowed(service, iface, method string) bool {
	return e.CheckMethod(service, iface, method, nil).Allowed
}

// InteractionInfo returns the user-interaction advisory for method, if its
// category needs one.
func (e *Engine) InteractionInfo(method string) (*model.InteractionInfo, bool) {
	cat, ok := e.catalog.Classify(method)
	if !ok {
		return nil, false
	}
	info, ok := model.NewInteractionInfo(cat)
	if !ok {
		return nil, false
	}
	return &info, true
}

// AuditLog returns up to limit of the most recent audit records, oldest
// first. A limit of zero or less returns all retained records.
func (e *Engine) AuditLog(limit int) []audit.Record {
	return e.audit.Query(limit)
}

// RateLimitStatus reports current usage for every rate-limited key seen.
func (e *Engine) RateLimitStatus() map[string]ratelimit.Usage {
	return e.limiter.Status()
}

// RateLimitWindow returns the trailing interval rate limits are counted over.
func (e *Engine) RateLimitWindow() time.Duration {
	return e.limiter.Window()
}

// AllowedCategories lists the catalog categories usable at the engine's level.
func (e *Engine) AllowedCategories() []catalog.Category {
	return e.catalog.AllowedAt(e.level)
}

// Level returns the effective safety level.
func (e *Engine) Level() catalog.Level { return e.level }

// Catalog returns the method catalog in force.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// ID returns the engine's instance ID, stamped on every audit record.
func (e *Engine) ID() string { return e.id }

// MethodKey is the audit and rate-limit key of a bus call.
func MethodKey(service, iface, method string) string {
	return service + ":" + iface + "." + method
}

func (e *Engine) finish(entry, op string, args map[string]any, d model.Decision) {
	e.audit.Append(audit.Entry{
		Operation: op,
		Arguments: args,
		Verdict:   d.Verdict,
		Reason:    d.Reason,
		Category:  d.Category,
	})

	switch {
	case d.Allowed:
		e.logger.Debug("allowed", zap.String("entry", entry), zap.String("operation", op))
	case d.Verdict != model.Forbidden && d.Verdict != model.RateLimited:
		// Forbidden and rate-limited records are logged by the audit log.
		e.logger.Info("denied",
			zap.String("entry", entry),
			zap.String("operation", op),
			zap.String("verdict", string(d.Verdict)),
			zap.String("reason", d.Reason))
	}

	e.metrics.ObserveDecision(entry, op, d.Verdict)
	e.metrics.SetStoreSizes(e.audit.Len(), e.limiter.Len())
}
