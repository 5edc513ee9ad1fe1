package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_AllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("redis", func(ctx context.Context) Status {
		return Status{Name: "redis", Healthy: true}
	})
	r.Register("scorer", func(ctx context.Context) Status {
		return Status{Name: "scorer", Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Len(t, statuses, 2)
}

func TestRegistry_OneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("redis", func(ctx context.Context) Status {
		return Status{Name: "redis", Healthy: true}
	})
	r.Register("scorer", func(ctx context.Context) Status {
		return Status{Name: "scorer", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Equal(t, "connection refused", statuses[1].Detail)
}

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}
