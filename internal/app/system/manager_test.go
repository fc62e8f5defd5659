package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	startErr error
	stopErr  error
	events   *[]string
}

func (r recordingService) Name() string { return r.name }

func (r recordingService) Start(context.Context) error {
	*r.events = append(*r.events, "start:"+r.name)
	return r.startErr
}

func (r recordingService) Stop(context.Context) error {
	*r.events = append(*r.events, "stop:"+r.name)
	return r.stopErr
}

func TestManagerOrdering(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(recordingService{name: "b", events: &events}))
	assert.Error(t, m.Register(recordingService{name: "a", events: &events}))
	assert.Equal(t, []string{"a", "b"}, m.Services())

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Register(NoopService{ServiceName: "late"}))
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx), "second stop is a no-op")

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(recordingService{name: "b", startErr: errors.New("boom"), events: &events}))
	require.NoError(t, m.Register(recordingService{name: "c", events: &events}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b: boom")
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, events)
}

func TestManagerStopJoinsErrors(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", stopErr: errors.New("x"), events: &events}))
	require.NoError(t, m.Register(recordingService{name: "b", stopErr: errors.New("y"), events: &events}))

	require.NoError(t, m.Start(context.Background()))
	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop a: x")
	assert.Contains(t, err.Error(), "stop b: y")
}
