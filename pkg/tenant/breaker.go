package tenant

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// breakerDirectory shields the engine from a misbehaving directory. Once the
// breaker opens, lookups fail fast with the breaker's error and the gate
// degrades tenant validation for those calls.
type breakerDirectory struct {
	inner Directory
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerDirectory(inner Directory, logger *logrus.Logger) Directory {
	settings := gobreaker.Settings{
		Name:    "tenant_directory",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("tenant directory breaker state changed")
		},
	}
	return &breakerDirectory{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (d *breakerDirectory) HasTenant(ctx context.Context, tenantID string) (bool, error) {
	result, err := d.cb.Execute(func() (interface{}, error) {
		return d.inner.HasTenant(ctx, tenantID)
	})
	if err != nil {
		return false, err
	}
	exists, ok := result.(bool)
	if !ok {
		return false, nil
	}
	return exists, nil
}

func (d *breakerDirectory) GetUserContext(ctx context.Context, tenantID, userID string) (*UserContext, error) {
	result, err := d.cb.Execute(func() (interface{}, error) {
		return d.inner.GetUserContext(ctx, tenantID, userID)
	})
	if err != nil {
		return nil, err
	}
	userCtx, ok := result.(*UserContext)
	if !ok {
		return nil, nil
	}
	return userCtx, nil
}
