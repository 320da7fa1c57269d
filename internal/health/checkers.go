package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidelink-audio/tidelink/pkg/node"
	"github.com/tidelink-audio/tidelink/pkg/storage"
)

// NodePool returns a [Checker] that passes while at least one worker node in
// the pool has an open WebSocket session.
func NodePool(pool *node.Pool) Checker {
	return Checker{
		Name: "nodes",
		Check: func(_ context.Context) error {
			if pool.Size() == 0 {
				return errors.New("no nodes configured")
			}
			if n := pool.ConnectedCount(); n == 0 {
				return fmt.Errorf("0 of %d nodes connected", pool.Size())
			}
			return nil
		},
	}
}

// Storage returns a [Checker] that probes the snapshot store with a read.
// A missing key is a healthy outcome; only transport or backend errors fail
// the check.
func Storage(store storage.Store) Checker {
	return Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			_, err := store.Get(ctx, "tidelink:health:probe")
			if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
				return err
			}
			return nil
		},
	}
}
