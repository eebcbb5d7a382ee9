package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/NeuralTrust/TrustShield/pkg/store"
)

// Janitor sweeps expired blocks, idle counters and empty windows on a fixed
// schedule. It only bounds memory: every store read already prunes lazily,
// so the engine behaves identically with the janitor disabled.
type Janitor struct {
	store    store.Store
	logger   *logrus.Logger
	interval time.Duration
	cron     *cron.Cron
}

func New(st store.Store, interval time.Duration, logger *logrus.Logger) *Janitor {
	return &Janitor{
		store:    st,
		logger:   logger,
		interval: interval,
		cron:     cron.New(),
	}
}

func (j *Janitor) Start() error {
	spec := fmt.Sprintf("@every %s", j.interval)
	if _, err := j.cron.AddFunc(spec, j.sweep); err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}
	j.cron.Start()
	j.logger.WithField("interval", j.interval.String()).Info("janitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

func (j *Janitor) sweep() {
	if err := j.store.Sweep(context.Background(), time.Now()); err != nil {
		j.logger.WithError(err).Error("janitor sweep failed")
		return
	}
	j.logger.Debug("janitor sweep completed")
}
