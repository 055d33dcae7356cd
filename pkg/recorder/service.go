package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/synchlab/pvlogger/pkg/datalog"
	"github.com/synchlab/pvlogger/pkg/source"
	"github.com/synchlab/pvlogger/pkg/types"
)

var (
	ErrEmptyGroup     = errors.New("no process variables to record")
	ErrBadPeriod      = errors.New("recording period must be positive")
	ErrBadDuration    = errors.New("recording duration must be positive")
	ErrAlreadyStarted = errors.New("recorder already started")
)

// New validates the configuration before anything connects. Invalid config
// is rejected here, never discovered mid-run.
func New(cfg Config, group *source.Group, writer *datalog.Writer, sinks ...SampleSink) (*Recorder, error) {
	if group == nil || group.Len() == 0 {
		return nil, ErrEmptyGroup
	}
	if cfg.Period <= 0 {
		return nil, ErrBadPeriod
	}
	if cfg.Duration <= 0 {
		return nil, ErrBadDuration
	}
	return &Recorder{
		cfg:    cfg,
		group:  group,
		writer: writer,
		sinks:  sinks,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the sampling loop in its own goroutine so start/stop
// control stays responsive while sampling is in progress.
func (r *Recorder) Start() error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyStarted
	}
	go r.run()
	return nil
}

// Stop requests termination. An in-flight cycle is always completed before
// the recorder stops; no new cycle starts after the request is observed.
// Safe to call at any point, including while still connecting.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
}

func (r *Recorder) State() State {
	return State(r.state.Load())
}

func (r *Recorder) IsRunning() bool {
	s := r.State()
	return s == StateConnecting || s == StateRunning
}

// Wait blocks until the recorder reaches Stopped and returns the terminal
// error, nil on normal duration expiry or cancellation.
func (r *Recorder) Wait() error {
	<-r.doneCh
	return r.err
}

func (r *Recorder) run() {
	defer close(r.doneCh)
	defer r.state.Store(int32(StateStopped))
	defer func() {
		if err := r.writer.Close(); err != nil {
			log.Warnf("closing writer: %v", err)
		}
	}()

	// Tie the unbounded connect wait to the stop signal so a stuck
	// Connecting state can always be cancelled from outside.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Infof("waiting for %d sources to connect", r.group.Len())
	if err := r.group.ConnectAll(ctx); err != nil {
		if r.stopRequested() {
			log.Info("stop requested while connecting")
			return
		}
		r.err = fmt.Errorf("connect: %w", err)
		return
	}
	if r.stopRequested() {
		// No cycle starts after a stop signal is observed.
		log.Info("stop requested")
		return
	}

	r.state.Store(int32(StateRunning))
	log.Infof("recording for %s at %s intervals", r.cfg.Duration, r.cfg.Period)

	// Ticks are scheduled at start + k*period rather than period after
	// each cycle, so sampling latency never accumulates as drift. The
	// first sample fires immediately on successful connection.
	start := time.Now()
	for k := 0; ; k++ {
		target := start.Add(time.Duration(k) * r.cfg.Period)
		if k > 0 {
			if target.Sub(start) > r.cfg.Duration {
				log.Info("recording duration reached")
				return
			}
			if !r.sleepUntil(target) {
				log.Info("stop requested")
				return
			}
		}

		r.cycle()

		if r.err != nil {
			return
		}
		if r.stopRequested() {
			log.Info("stop requested")
			return
		}
	}
}

// cycle performs one sample-and-write pass. A read failure skips the whole
// cycle (no partial row); a primary write failure is terminal.
func (r *Recorder) cycle() {
	readings, err := r.group.SampleAll()
	if err != nil {
		log.Warnf("skipping cycle: %v", err)
		return
	}

	sample := &types.Sample{CaptureTime: time.Now(), Readings: readings}
	if err := r.writer.Append(sample); err != nil {
		// Continued persistence failures indicate a structural
		// problem; stop rather than drop data indefinitely.
		r.err = fmt.Errorf("append sample: %w", err)
		return
	}

	for _, sink := range r.sinks {
		if err := sink.Record(sample); err != nil {
			log.Warnf("sample sink: %v", err)
		}
	}
}

// sleepUntil waits for the next tick, interruptible by Stop. Returns false
// when the stop signal was observed.
func (r *Recorder) sleepUntil(target time.Time) bool {
	d := time.Until(target)
	if d <= 0 {
		return !r.stopRequested()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.stopCh:
		return false
	}
}

func (r *Recorder) stopRequested() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

// Names returns the group's PV column order, fixed for the run.
func (r *Recorder) Names() []types.PVName {
	return r.group.Names()
}
