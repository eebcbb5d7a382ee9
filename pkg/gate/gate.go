package gate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/NeuralTrust/TrustShield/pkg/audit"
	"github.com/NeuralTrust/TrustShield/pkg/config"
	"github.com/NeuralTrust/TrustShield/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustShield/pkg/scorer"
	"github.com/NeuralTrust/TrustShield/pkg/store"
	"github.com/NeuralTrust/TrustShield/pkg/tenant"
	"github.com/NeuralTrust/TrustShield/pkg/utils"
)

// Block reasons. All three triggers share one block registry.
const (
	ReasonRateExceeded        = "rate exceeded"
	ReasonTooManyFailedLogins = "too many failed logins"
	ReasonInjectionAttempt    = "injection attempt detected"
	ReasonAnomalyScore        = "anomaly score exceeded"
)

// Identity is what a caller presents per request.
type Identity struct {
	TenantID  string
	UserID    string
	Address   string
	UserAgent string
}

// ValidationResult answers "is this identity/address allowed". Exactly one
// of the failure flags is set when Valid is false for a policy reason;
// internal faults set only Reason.
type ValidationResult struct {
	Valid            bool
	Reason           string
	Blocked          bool
	RateLimited      bool
	InvalidTenant    bool
	UnauthorizedUser bool
}

// AnomalyReport is a caller-supplied signal bundle for one observed action.
type AnomalyReport struct {
	TenantID string
	UserID   string
	Address  string
	Action   string
	Signals  scorer.Signals
}

type AnomalyResult struct {
	IsAnomaly bool
	Score     int
	Anomalies []string
	Threshold int
}

// Gate orchestrates the block registry, window counters, scorer and
// collaborators behind the three engine operations. All state lives in the
// injected store; the gate itself is safe for concurrent use.
type Gate struct {
	cfg       config.Config
	store     store.Store
	scorer    *scorer.Scorer
	directory tenant.Directory
	audit     *audit.Dispatcher
	logger    *logrus.Logger
	now       func() time.Time
}

type Opts struct {
	TimeProvider func() time.Time
}

// New builds a gate. Both collaborators are optional: a nil directory
// disables tenant validation, a nil dispatcher disables audit emission.
// Missing collaborators are a degraded mode, never a construction failure.
func New(
	cfg config.Config,
	st store.Store,
	directory tenant.Directory,
	dispatcher *audit.Dispatcher,
	logger *logrus.Logger,
	opts *Opts,
) *Gate {
	now := time.Now
	if opts != nil && opts.TimeProvider != nil {
		now = opts.TimeProvider
	}
	if directory == nil && cfg.EnableTenantValidation {
		logger.Warn("tenant directory not configured, tenant validation disabled")
	}
	return &Gate{
		cfg:       cfg,
		store:     st,
		scorer:    scorer.New(cfg.Weights, cfg.FailedLoginThreshold),
		directory: directory,
		audit:     dispatcher,
		logger:    logger,
		now:       now,
	}
}

// ValidateIdentity runs the ordered access checks; the first failure
// short-circuits the rest. Internal faults are converted to a denial, never
// propagated: a faulty check fails closed.
func (g *Gate) ValidateIdentity(ctx context.Context, id Identity) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.WithFields(logrus.Fields{
				"panic":   r,
				"address": id.Address,
			}).Error("identity validation panicked")
			prometheus.ValidationTotal.WithLabelValues(prometheus.ResultInternalError).Inc()
			result = ValidationResult{Valid: false, Reason: "internal error"}
		}
	}()

	now := g.now()

	entry, err := g.store.GetBlock(ctx, id.Address, now)
	if err != nil {
		g.logger.WithError(err).WithField("address", id.Address).Error("block lookup failed")
		prometheus.ValidationTotal.WithLabelValues(prometheus.ResultInternalError).Inc()
		return ValidationResult{Valid: false, Reason: "internal error"}
	}
	if entry != nil {
		g.emit(audit.Event{
			EventType: audit.EventIPBlocked,
			UserID:    id.UserID,
			TenantID:  id.TenantID,
			IPAddress: id.Address,
			UserAgent: id.UserAgent,
			Action:    "validate_identity",
			Details:   map[string]interface{}{"reason": entry.Reason, "expires_at": entry.ExpiresAt},
			RiskLevel: audit.RiskHigh,
			Status:    audit.StatusDenied,
		})
		prometheus.ValidationTotal.WithLabelValues(prometheus.ResultBlocked).Inc()
		return ValidationResult{Valid: false, Reason: "address is blocked", Blocked: true}
	}

	if g.cfg.EnableRateLimiting {
		count, err := g.store.CountRequests(ctx, id.Address, now)
		if err != nil {
			g.logger.WithError(err).WithField("address", id.Address).Error("request count failed")
			prometheus.ValidationTotal.WithLabelValues(prometheus.ResultInternalError).Inc()
			return ValidationResult{Valid: false, Reason: "internal error"}
		}
		if count >= g.cfg.MaxRequests {
			g.BlockAddress(ctx, id.Address, ReasonRateExceeded)
			prometheus.ValidationTotal.WithLabelValues(prometheus.ResultRateLimited).Inc()
			return ValidationResult{Valid: false, Reason: ReasonRateExceeded, RateLimited: true}
		}
	}

	if g.cfg.EnableTenantValidation && g.directory != nil {
		if res, degraded := g.validateTenant(ctx, id); !degraded && !res.Valid {
			return res
		}
	}

	if g.cfg.EnableRateLimiting {
		admitted, err := g.store.ReserveRequest(ctx, id.Address, now, g.cfg.MaxRequests)
		if err != nil {
			g.logger.WithError(err).WithField("address", id.Address).Error("request reserve failed")
			prometheus.ValidationTotal.WithLabelValues(prometheus.ResultInternalError).Inc()
			return ValidationResult{Valid: false, Reason: "internal error"}
		}
		if !admitted {
			// Lost the race for the last window slot.
			g.BlockAddress(ctx, id.Address, ReasonRateExceeded)
			prometheus.ValidationTotal.WithLabelValues(prometheus.ResultRateLimited).Inc()
			return ValidationResult{Valid: false, Reason: ReasonRateExceeded, RateLimited: true}
		}
	}

	prometheus.ValidationTotal.WithLabelValues(prometheus.ResultAllowed).Inc()
	return ValidationResult{Valid: true}
}

// validateTenant checks tenant existence and user membership. Collaborator
// errors degrade the check for this call (degraded=true) instead of denying.
func (g *Gate) validateTenant(ctx context.Context, id Identity) (ValidationResult, bool) {
	exists, err := g.directory.HasTenant(ctx, id.TenantID)
	if err != nil {
		g.logger.WithError(err).WithField("tenant_id", id.TenantID).
			Warn("tenant lookup failed, skipping tenant validation")
		return ValidationResult{}, true
	}
	if !exists {
		g.emit(audit.Event{
			EventType: audit.EventInvalidTenant,
			UserID:    id.UserID,
			TenantID:  id.TenantID,
			IPAddress: id.Address,
			UserAgent: id.UserAgent,
			Action:    "validate_identity",
			RiskLevel: audit.RiskMedium,
			Status:    audit.StatusDenied,
		})
		prometheus.ValidationTotal.WithLabelValues(prometheus.ResultInvalidTenant).Inc()
		return ValidationResult{Valid: false, Reason: "unknown tenant", InvalidTenant: true}, false
	}

	userCtx, err := g.directory.GetUserContext(ctx, id.TenantID, id.UserID)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": id.TenantID,
			"user_id":   id.UserID,
		}).Warn("user lookup failed, skipping membership validation")
		return ValidationResult{}, true
	}
	if userCtx == nil {
		g.emit(audit.Event{
			EventType: audit.EventUnauthorizedUser,
			UserID:    id.UserID,
			TenantID:  id.TenantID,
			IPAddress: id.Address,
			UserAgent: id.UserAgent,
			Action:    "validate_identity",
			RiskLevel: audit.RiskHigh,
			Status:    audit.StatusDenied,
		})
		prometheus.ValidationTotal.WithLabelValues(prometheus.ResultUnauthorizedUser).Inc()
		return ValidationResult{Valid: false, Reason: "user does not belong to tenant", UnauthorizedUser: true}, false
	}

	return ValidationResult{Valid: true}, false
}

// DetectAnomaly scores a signal bundle plus the derived failed-login signal.
// An injection signal blocks the address immediately; a total score at or
// above AutoBlockScore blocks it regardless of which signals contributed.
// Both triggers are intentionally independent.
func (g *Gate) DetectAnomaly(ctx context.Context, report AnomalyReport) (result AnomalyResult) {
	result = AnomalyResult{Threshold: g.cfg.AnomalyThreshold}

	defer func() {
		if r := recover(); r != nil {
			g.logger.WithFields(logrus.Fields{
				"panic":   r,
				"address": report.Address,
			}).Error("anomaly detection panicked")
			result = AnomalyResult{Threshold: g.cfg.AnomalyThreshold}
		}
	}()

	now := g.now()

	failedLogins, err := g.store.FailedLoginCount(ctx, report.Address, now)
	if err != nil {
		g.logger.WithError(err).WithField("address", report.Address).
			Warn("failed-login lookup failed, scoring without it")
		failedLogins = 0
	}

	score, anomalies := g.scorer.Score(report.Signals, failedLogins)
	result.Score = score
	result.Anomalies = anomalies
	result.IsAnomaly = score >= g.cfg.AnomalyThreshold

	for _, name := range anomalies {
		if err := g.store.AppendActivity(ctx, report.Address, store.ActivityRecord{
			Type:      name,
			Timestamp: now,
			Details:   report.Action,
		}); err != nil {
			g.logger.WithError(err).WithField("address", report.Address).
				Warn("failed to append suspicious activity")
		}
	}

	if report.Signals.InjectionAttempt {
		g.BlockAddress(ctx, report.Address, ReasonInjectionAttempt)
	}
	if score >= g.cfg.AutoBlockScore {
		g.BlockAddress(ctx, report.Address, ReasonAnomalyScore)
	}

	if result.IsAnomaly {
		prometheus.AnomaliesTotal.Inc()
		g.emit(audit.Event{
			EventType: audit.EventAnomalyDetected,
			UserID:    report.UserID,
			TenantID:  report.TenantID,
			IPAddress: report.Address,
			UserAgent: report.Signals.UserAgent,
			Action:    report.Action,
			Details: map[string]interface{}{
				"score":     score,
				"anomalies": anomalies,
				"threshold": g.cfg.AnomalyThreshold,
			},
			RiskLevel: riskLevelForScore(score),
			Status:    audit.StatusFlagged,
		})
	}

	return result
}

// BlockAddress places or refreshes a block. Re-blocking overwrites reason
// and timestamps, extending the TTL from now.
func (g *Gate) BlockAddress(ctx context.Context, address, reason string) {
	now := g.now()
	entry := store.BlockEntry{
		Address:   address,
		Reason:    reason,
		BlockedAt: now,
		ExpiresAt: now.Add(g.cfg.BlockDuration),
	}
	if err := g.store.SetBlock(ctx, entry); err != nil {
		g.logger.WithError(err).WithField("address", address).Error("failed to set block")
		return
	}

	prometheus.BlocksTotal.WithLabelValues(reason).Inc()
	g.logger.WithFields(logrus.Fields{
		"address":    address,
		"reason":     reason,
		"expires_at": entry.ExpiresAt,
	}).Warn("address blocked")

	g.emit(audit.Event{
		EventType: audit.EventIPBlocked,
		IPAddress: address,
		Action:    "block_address",
		Details:   map[string]interface{}{"reason": reason, "expires_at": entry.ExpiresAt},
		RiskLevel: audit.RiskCritical,
		Status:    audit.StatusDenied,
	})
}

// RecordFailedLogin bumps the address's counter; reaching the configured
// threshold blocks the address.
func (g *Gate) RecordFailedLogin(ctx context.Context, address string) {
	now := g.now()
	entry, err := g.store.IncrementFailedLogins(ctx, address, now)
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("failed to record failed login")
		return
	}

	if err := g.store.AppendActivity(ctx, address, store.ActivityRecord{
		Type:      "failed_login",
		Timestamp: now,
	}); err != nil {
		g.logger.WithError(err).WithField("address", address).
			Warn("failed to append suspicious activity")
	}

	if entry.Count >= g.cfg.FailedLoginThreshold {
		g.BlockAddress(ctx, address, ReasonTooManyFailedLogins)
	}
}

// IsBlocked reports whether address has an active block.
func (g *Gate) IsBlocked(ctx context.Context, address string) (bool, *store.BlockEntry) {
	entry, err := g.store.GetBlock(ctx, address, g.now())
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("block lookup failed")
		return false, nil
	}
	return entry != nil, entry
}

// RecentActivity returns the address's suspicious activity ring, newest
// first.
func (g *Gate) RecentActivity(ctx context.Context, address string) []store.ActivityRecord {
	records, err := g.store.RecentActivity(ctx, address)
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("activity lookup failed")
		return nil
	}
	return records
}

// emit stamps and forwards an audit event. Emission is fire-and-forget and
// enriches the event with parsed user-agent facts when available.
func (g *Gate) emit(evt audit.Event) {
	if !g.cfg.EnableAuditLog {
		return
	}
	evt.ID = uuid.NewString()
	evt.Timestamp = g.now()
	if evt.UserAgent != "" {
		if info := utils.ParseUserAgent(evt.UserAgent); info != nil {
			if evt.Details == nil {
				evt.Details = make(map[string]interface{})
			}
			evt.Details["device"] = info.Device
			evt.Details["os"] = info.OS
			evt.Details["browser"] = info.Browser
		}
	}
	g.audit.Emit(evt)
}

func riskLevelForScore(score int) string {
	switch {
	case score >= 20:
		return audit.RiskCritical
	case score >= 15:
		return audit.RiskHigh
	default:
		return audit.RiskMedium
	}
}
