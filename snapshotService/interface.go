// Package snapshotService loads the current controller snapshot from the network data feed.
package snapshotService

import (
	"context"

	"github.com/tanmay-xvx/controller-relay/internals/models"
)

// SnapshotLoader defines the interface for loading the controller snapshot.
type SnapshotLoader interface {
	// Load fetches and filters the current snapshot. It never fails: when the
	// feed cannot be read an empty snapshot is returned.
	Load(ctx context.Context) models.Snapshot
}
