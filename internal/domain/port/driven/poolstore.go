// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

// PoolStateStore defines the driven port for durable pool state. The state is
// always read and written as a whole document; there are no partial updates.
type PoolStateStore interface {
	// Load returns the persisted state, or model.NewPoolState() if nothing has
	// been saved yet. A missing store is not an error.
	Load(ctx context.Context) (model.PoolState, error)

	// Save replaces the persisted state. Errors must be returned, never dropped.
	Save(ctx context.Context, state model.PoolState) error
}
