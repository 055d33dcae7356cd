package recorder

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/synchlab/pvlogger/pkg/datalog"
	"github.com/synchlab/pvlogger/pkg/source"
	"github.com/synchlab/pvlogger/pkg/types"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SampleSink receives every written sample in addition to the primary
// rotating writer. Sink failures are logged and never stop a run; only the
// primary writer escalates.
type SampleSink interface {
	Record(sample *types.Sample) error
}

type Config struct {
	Period   time.Duration
	Duration time.Duration
}

// Recorder drives the sampling cadence: wait for group readiness, then
// sample-and-write at fixed intervals until the configured duration elapses
// or Stop is called.
type Recorder struct {
	cfg    Config
	group  *source.Group
	writer *datalog.Writer
	sinks  []SampleSink

	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	err      error
}
