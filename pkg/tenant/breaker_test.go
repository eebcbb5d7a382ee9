package tenant_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeuralTrust/TrustShield/pkg/tenant"
)

type flakyDirectory struct {
	calls   atomic.Int64
	failing atomic.Bool
}

func (d *flakyDirectory) HasTenant(context.Context, string) (bool, error) {
	d.calls.Add(1)
	if d.failing.Load() {
		return false, errors.New("directory unreachable")
	}
	return true, nil
}

func (d *flakyDirectory) GetUserContext(context.Context, string, string) (*tenant.UserContext, error) {
	d.calls.Add(1)
	if d.failing.Load() {
		return nil, errors.New("directory unreachable")
	}
	return &tenant.UserContext{UserID: "user-1", TenantID: "tenant-1"}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBreakerDirectory_PassThrough(t *testing.T) {
	inner := &flakyDirectory{}
	d := tenant.NewBreakerDirectory(inner, testLogger())
	ctx := context.Background()

	exists, err := d.HasTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, exists)

	userCtx, err := d.GetUserContext(ctx, "tenant-1", "user-1")
	require.NoError(t, err)
	require.NotNil(t, userCtx)
	assert.Equal(t, "user-1", userCtx.UserID)
}

func TestBreakerDirectory_ErrorsPropagate(t *testing.T) {
	inner := &flakyDirectory{}
	inner.failing.Store(true)
	d := tenant.NewBreakerDirectory(inner, testLogger())

	_, err := d.HasTenant(context.Background(), "tenant-1")
	assert.Error(t, err)

	_, err = d.GetUserContext(context.Background(), "tenant-1", "user-1")
	assert.Error(t, err)
}

func TestBreakerDirectory_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyDirectory{}
	inner.failing.Store(true)
	d := tenant.NewBreakerDirectory(inner, testLogger())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = d.HasTenant(ctx, "tenant-1")
	}

	// The breaker tripped after six consecutive failures; later calls fail
	// fast without reaching the inner directory.
	callsWhenOpen := inner.calls.Load()
	assert.Equal(t, int64(6), callsWhenOpen)

	inner.failing.Store(false)
	_, err := d.HasTenant(ctx, "tenant-1")
	assert.Error(t, err)
	assert.Equal(t, callsWhenOpen, inner.calls.Load())
}
