package storage

import (
	"context"
	"fmt"

	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STATE STORE - Durable alerted set + tracking map
// ═══════════════════════════════════════════════════════════════════════════════
//
// Loaded once at startup, written back on triggers and a timer. The running
// engine never reads the durable copy mid-run.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Store persists engine snapshots
type Store interface {
	// Load returns the last saved snapshot, or an empty one if none exists
	Load(ctx context.Context) (*types.Snapshot, error)
	// Save replaces the durable snapshot. A failed save leaves the previous
	// good copy intact.
	Save(ctx context.Context, snap *types.Snapshot) error
	Close() error
}

// Open returns the store for backend ("file" or "sql")
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path), nil
	case "sql":
		return NewDatabase(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
