package audit

import "time"

// Event types emitted by the access gate.
const (
	EventIPBlocked        = "IP_BLOCKED"
	EventInvalidTenant    = "INVALID_TENANT"
	EventUnauthorizedUser = "UNAUTHORIZED_USER"
	EventAnomalyDetected  = "ANOMALY_DETECTED"
)

const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

const (
	StatusDenied  = "denied"
	StatusFlagged = "flagged"
)

// Event is the structured record handed to the audit collaborator. The
// engine emits events; it never owns their storage.
type Event struct {
	ID        string                 `json:"id"`
	EventType string                 `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RiskLevel string                 `json:"risk_level"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
}

// Service is implemented by the audit collaborator.
type Service interface {
	LogEvent(event Event) error
}
