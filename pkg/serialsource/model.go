package serialsource

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/synchlab/pvlogger/pkg/types"
)

// PortReader owns one serial port streaming framed telegrams and keeps the
// most recent reading per PV key. Individual PV sources are keys into that
// cache.
type PortReader struct {
	device   string
	baudrate uint

	serialPort io.ReadWriteCloser
	stopSignal atomic.Bool

	readingMutex sync.RWMutex
	latest       map[types.PVName]types.Reading
}
