package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchlab/pvlogger/pkg/types"
)

// stubSource is a ValueSource with scriptable connect and read behavior.
type stubSource struct {
	name    types.PVName
	ready   chan struct{} // Connect blocks until closed (nil = immediate)
	readErr error
	value   types.Value
}

func (s *stubSource) Name() types.PVName { return s.name }

func (s *stubSource) Connect(ctx context.Context) error {
	if s.ready == nil {
		return ctx.Err()
	}
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubSource) Read() (types.Reading, error) {
	if s.readErr != nil {
		return types.Reading{}, s.readErr
	}
	return types.Reading{Name: s.name, Value: s.value, Timestamp: time.Now()}, nil
}

func (s *stubSource) Close() error { return nil }

func TestGroupPreservesOrder(t *testing.T) {
	g := NewGroup(
		&stubSource{name: "b", value: types.Number(2)},
		&stubSource{name: "a", value: types.Number(1)},
		&stubSource{name: "c", value: types.Number(3)},
	)

	assert.Equal(t, []types.PVName{"b", "a", "c"}, g.Names())

	readings, err := g.SampleAll()
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, types.PVName("b"), readings[0].Name)
	assert.Equal(t, types.PVName("a"), readings[1].Name)
	assert.Equal(t, types.PVName("c"), readings[2].Name)
}

func TestSampleAllFailsWholeCycle(t *testing.T) {
	g := NewGroup(
		&stubSource{name: "a", value: types.Number(1)},
		&stubSource{name: "b", readErr: errors.New("no value")},
		&stubSource{name: "c", value: types.Number(3)},
	)

	readings, err := g.SampleAll()
	assert.Nil(t, readings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
}

func TestConnectAllWaitsForEverySource(t *testing.T) {
	ready1 := make(chan struct{})
	ready2 := make(chan struct{})
	g := NewGroup(
		&stubSource{name: "a", ready: ready1},
		&stubSource{name: "b", ready: ready2},
	)

	done := make(chan error, 1)
	go func() {
		done <- g.ConnectAll(context.Background())
	}()

	close(ready1)
	select {
	case <-done:
		t.Fatal("ConnectAll returned before all sources were ready")
	case <-time.After(50 * time.Millisecond):
	}

	close(ready2)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConnectAll did not return after all sources became ready")
	}
}

func TestConnectAllIsCancellable(t *testing.T) {
	g := NewGroup(&stubSource{name: "stuck", ready: make(chan struct{})})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.ConnectAll(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("ConnectAll did not observe cancellation")
	}
}

func TestSimSource(t *testing.T) {
	calls := 0
	s := NewSimSource("sim", func() types.Value {
		calls++
		return types.Number(float64(calls))
	})

	require.NoError(t, s.Connect(context.Background()))
	r, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, types.Number(1), r.Value)
	r, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, types.Number(2), r.Value)
	assert.False(t, r.Timestamp.IsZero())
}
