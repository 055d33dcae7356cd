package source

import (
	"context"

	"github.com/synchlab/pvlogger/pkg/types"
)

// ValueSource is the per-PV provider capability the engine needs: connect
// and wait until ready, then return the current (value, timestamp) pair on
// demand.
type ValueSource interface {
	Name() types.PVName

	// Connect blocks until the source is ready or ctx is cancelled.
	// There is deliberately no timeout; cancellation always comes from
	// the caller.
	Connect(ctx context.Context) error

	// Read returns the current value. It must not block indefinitely
	// after a successful Connect.
	Read() (types.Reading, error)

	Close() error
}
