package shield

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/NeuralTrust/TrustShield/pkg/audit"
	"github.com/NeuralTrust/TrustShield/pkg/config"
	"github.com/NeuralTrust/TrustShield/pkg/gate"
	"github.com/NeuralTrust/TrustShield/pkg/infra/logger"
	"github.com/NeuralTrust/TrustShield/pkg/janitor"
	"github.com/NeuralTrust/TrustShield/pkg/sanitizer"
	"github.com/NeuralTrust/TrustShield/pkg/store"
	"github.com/NeuralTrust/TrustShield/pkg/tenant"
)

const auditWorkers = 4

// Engine bundles the gate, sanitizer and their supporting tasks behind the
// three call-in operations. Construct one per process and inject it into
// request handlers; it owns its state and collaborator plumbing.
type Engine struct {
	gate       *gate.Gate
	sanitizer  *sanitizer.Sanitizer
	dispatcher *audit.Dispatcher
	janitor    *janitor.Janitor
	logger     *logrus.Logger
}

// NewEngine validates cfg and wires the engine. Both collaborators are
// optional; passing nil disables the corresponding feature with a warning
// rather than failing construction. A nil logger gets the default JSON
// stdout logger.
func NewEngine(
	cfg config.Config,
	directory tenant.Directory,
	auditService audit.Service,
	log *logrus.Logger,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if log == nil {
		log = logger.New()
	}

	storeOpts := store.Options{
		WindowDuration:   cfg.WindowDuration,
		FailedLoginTTL:   cfg.FailedLoginTTL,
		ActivityCapacity: cfg.ActivityLogCapacity,
	}

	var st store.Store
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st = store.NewRedisStore(client, storeOpts, nil)
		log.WithField("addr", client.Options().Addr).Info("using redis security store")
	} else {
		st = store.NewMemoryStore(storeOpts)
	}

	if directory != nil {
		directory = tenant.NewBreakerDirectory(directory, log)
	}

	dispatcher := audit.NewDispatcher(auditService, log)
	dispatcher.StartWorkers(auditWorkers)

	j := janitor.New(st, cfg.JanitorInterval, log)
	if err := j.Start(); err != nil {
		dispatcher.Shutdown()
		return nil, err
	}

	return &Engine{
		gate:       gate.New(cfg, st, directory, dispatcher, log, nil),
		sanitizer:  sanitizer.New(log),
		dispatcher: dispatcher,
		janitor:    j,
		logger:     log,
	}, nil
}

// ValidateIdentity checks a presented identity against blocks, rate limits
// and the tenant directory.
func (e *Engine) ValidateIdentity(ctx context.Context, id gate.Identity) gate.ValidationResult {
	return e.gate.ValidateIdentity(ctx, id)
}

// DetectAnomaly scores a caller-supplied signal bundle.
func (e *Engine) DetectAnomaly(ctx context.Context, report gate.AnomalyReport) gate.AnomalyResult {
	return e.gate.DetectAnomaly(ctx, report)
}

// ValidateInput validates and sanitizes a payload.
func (e *Engine) ValidateInput(data interface{}, dataType string) sanitizer.Result {
	return e.sanitizer.Validate(data, dataType)
}

// Gate exposes the underlying gate for block management and failed-login
// reporting.
func (e *Engine) Gate() *gate.Gate {
	return e.gate
}

// Shutdown stops the janitor and drains the audit dispatcher.
func (e *Engine) Shutdown() {
	e.janitor.Stop()
	e.dispatcher.Shutdown()
	e.logger.Info("shield engine stopped")
}
