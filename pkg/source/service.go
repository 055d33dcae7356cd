package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/synchlab/pvlogger/pkg/types"
)

// Group holds the ordered ValueSources for one run. Order is the
// user-specified PV list order and is fixed for the lifetime of the run.
type Group struct {
	sources []ValueSource
}

func NewGroup(sources ...ValueSource) *Group {
	return &Group{sources: sources}
}

func (g *Group) Len() int {
	return len(g.sources)
}

func (g *Group) Names() []types.PVName {
	names := make([]types.PVName, len(g.sources))
	for i, src := range g.sources {
		names[i] = src.Name()
	}
	return names
}

// ConnectAll requests a connection from every source and returns once all
// of them are ready. Sources connect concurrently; the wait is unbounded
// and is cut short only by cancelling ctx.
func (g *Group) ConnectAll(ctx context.Context) error {
	errs := make([]error, len(g.sources))
	var wg sync.WaitGroup
	for i, src := range g.sources {
		wg.Add(1)
		go func(i int, src ValueSource) {
			defer wg.Done()
			log.Debugf("waiting for %s to connect", src.Name())
			errs[i] = src.Connect(ctx)
		}(i, src)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Debugf("all %d sources connected", len(g.sources))
	return nil
}

// SampleAll reads every source in group order. Any single read failure
// fails the whole sample; the caller skips the cycle rather than writing a
// partial row.
func (g *Group) SampleAll() ([]types.Reading, error) {
	readings := make([]types.Reading, 0, len(g.sources))
	for _, src := range g.sources {
		r, err := src.Read()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.Name(), err)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (g *Group) Close() error {
	var errs []error
	for _, src := range g.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
