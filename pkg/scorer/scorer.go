package scorer

import (
	"github.com/NeuralTrust/TrustShield/pkg/utils"
)

// Signal names reported in anomaly results and audit events, in evaluation
// order.
const (
	SignalCrossTenantAccess     = "cross_tenant_access"
	SignalInjectionAttempt      = "injection_attempt"
	SignalPermissionEscalation  = "permission_escalation"
	SignalAnomalousTime         = "anomalous_time"
	SignalSuspiciousUserAgent   = "suspicious_user_agent"
	SignalExcessiveFailedLogins = "excessive_failed_logins"
)

// Signals is a fixed-shape bundle of suspicion indicators supplied by the
// caller. The failed-login signal is derived by the engine, not reported
// here.
type Signals struct {
	CrossTenantAccess    bool
	InjectionAttempt     bool
	PermissionEscalation bool
	AnomalousTime        bool
	SuspiciousUserAgent  bool
	// UserAgent, when set, is additionally run through the scripted-client
	// heuristic; either path raises the suspicious user-agent signal.
	UserAgent string
}

type Weights struct {
	CrossTenantAccess     int `mapstructure:"cross_tenant_access"`
	InjectionAttempt      int `mapstructure:"injection_attempt"`
	PermissionEscalation  int `mapstructure:"permission_escalation"`
	AnomalousTime         int `mapstructure:"anomalous_time"`
	SuspiciousUserAgent   int `mapstructure:"suspicious_user_agent"`
	ExcessiveFailedLogins int `mapstructure:"excessive_failed_logins"`
}

func DefaultWeights() Weights {
	return Weights{
		CrossTenantAccess:     10,
		InjectionAttempt:      20,
		PermissionEscalation:  15,
		AnomalousTime:         5,
		SuspiciousUserAgent:   8,
		ExcessiveFailedLogins: 12,
	}
}

// Scorer is a stateless additive scoring function over independent signals.
type Scorer struct {
	weights              Weights
	failedLoginThreshold int
}

func New(weights Weights, failedLoginThreshold int) *Scorer {
	return &Scorer{
		weights:              weights,
		failedLoginThreshold: failedLoginThreshold,
	}
}

// Score sums the weights of the raised signals and returns the contributing
// signal names in fixed evaluation order, so identical input always yields
// identical output.
func (s *Scorer) Score(sig Signals, failedLogins int) (int, []string) {
	score := 0
	var anomalies []string

	if sig.CrossTenantAccess {
		score += s.weights.CrossTenantAccess
		anomalies = append(anomalies, SignalCrossTenantAccess)
	}
	if sig.InjectionAttempt {
		score += s.weights.InjectionAttempt
		anomalies = append(anomalies, SignalInjectionAttempt)
	}
	if sig.PermissionEscalation {
		score += s.weights.PermissionEscalation
		anomalies = append(anomalies, SignalPermissionEscalation)
	}
	if sig.AnomalousTime {
		score += s.weights.AnomalousTime
		anomalies = append(anomalies, SignalAnomalousTime)
	}
	if sig.SuspiciousUserAgent || (sig.UserAgent != "" && utils.IsSuspiciousUserAgent(sig.UserAgent)) {
		score += s.weights.SuspiciousUserAgent
		anomalies = append(anomalies, SignalSuspiciousUserAgent)
	}
	if failedLogins >= s.failedLoginThreshold {
		score += s.weights.ExcessiveFailedLogins
		anomalies = append(anomalies, SignalExcessiveFailedLogins)
	}

	return score, anomalies
}
