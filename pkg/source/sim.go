package source

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/synchlab/pvlogger/pkg/types"
)

// SimSource produces values locally from a generator function. Used by the
// sim backend and by tests; it is always ready as soon as Connect runs.
type SimSource struct {
	name types.PVName

	mu   sync.Mutex
	next func() types.Value
}

func NewSimSource(name types.PVName, next func() types.Value) *SimSource {
	return &SimSource{name: name, next: next}
}

// NewRandomWalkSource simulates a slowly drifting analog channel.
func NewRandomWalkSource(name types.PVName) *SimSource {
	value := rand.Float64() * 100
	return NewSimSource(name, func() types.Value {
		value += rand.Float64() - 0.5
		return types.Number(value)
	})
}

func (s *SimSource) Name() types.PVName {
	return s.name
}

func (s *SimSource) Connect(ctx context.Context) error {
	return ctx.Err()
}

func (s *SimSource) Read() (types.Reading, error) {
	s.mu.Lock()
	v := s.next()
	s.mu.Unlock()
	return types.Reading{Name: s.name, Value: v, Timestamp: time.Now()}, nil
}

func (s *SimSource) Close() error {
	return nil
}
