package nvml

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldland/gpugov/internal/domain"
)

func TestMockGPUProvider_ReplaysTrace(t *testing.T) {
	p := NewMockGPUProvider(domain.DeviceInfo{UUID: "mock-gpu-0"}, []int{10, 20, 30})
	ctx := context.Background()

	var got []int
	for range 5 {
		util, err := p.Utilization(ctx)
		require.NoError(t, err)
		got = append(got, util)
	}

	assert.Equal(t, []int{10, 20, 30, 30, 30}, got)
	assert.Zero(t, p.Remaining())
}

func TestMockGPUProvider_RecordsApply(t *testing.T) {
	p := NewMockGPUProvider(domain.DeviceInfo{}, nil)

	require.NoError(t, p.Apply(context.Background(), 600, false, false))
	require.NoError(t, p.Apply(context.Background(), 800, true, false))

	assert.Equal(t, []ApplyCall{{Clock: 600}, {Clock: 800, PendingAllowed: true}}, p.Applied())
	info, err := p.Info()
	require.NoError(t, err)
	assert.Equal(t, 800, info.CurClockMHz)

	p.ApplyErr = errors.New("locked")
	assert.Error(t, p.Apply(context.Background(), 400, true, false))
	assert.Len(t, p.Applied(), 2)
}

func TestMockGPUProvider_Power(t *testing.T) {
	p := NewMockGPUProvider(domain.DeviceInfo{}, nil)
	assert.True(t, p.PoweredOn())

	p.SetPowered(false)
	assert.False(t, p.PoweredOn())

	util, err := p.Utilization(context.Background())
	require.NoError(t, err)
	assert.Zero(t, util)
}

func TestMockGPUProvider_JobEvents(t *testing.T) {
	p := NewMockGPUProvider(domain.DeviceInfo{}, nil)

	p.EmitJob(domain.JobEvent{State: domain.JobQueued})

	ev := <-p.JobEvents()
	assert.Equal(t, domain.JobQueued, ev.State)
}
