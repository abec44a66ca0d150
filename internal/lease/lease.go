// Package lease provides non-blocking, cross-process mutual exclusion for
// the parse scheduler, so at most one worker processes jobs at a time.
package lease

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amankb/internal/store"
)

// Backend names accepted by worker.lease_backend.
const (
	BackendFile = "file"
	BackendSQL  = "sql"
)

// SchedulerLeaseName names the scheduler's lease.
const SchedulerLeaseName = "kb-parse-scheduler"

// Lease is a named lock that is taken without waiting.
type Lease interface {
	// TryAcquire reports whether the lease was taken. It never blocks.
	TryAcquire(ctx context.Context) (bool, error)

	// Release gives the lease up. Releasing a lease that is not held is a no-op.
	Release(ctx context.Context) error
}

// Options configures New.
type Options struct {
	// Backend is BackendFile or BackendSQL.
	Backend string
	// Dir holds the lock file of the file backend.
	Dir string
	// TTL bounds how long a SQL lease survives a holder that died.
	TTL time.Duration
	// Holder identifies this process. Empty uses HolderID().
	Holder string
}

// New creates the scheduler lease for the configured backend.
func New(opts Options, leases store.LeaseStore) (Lease, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendFile, "":
		if opts.Dir == "" {
			return nil, fmt.Errorf("lease directory is required for the file backend")
		}
		return NewFileLease(filepath.Join(opts.Dir, SchedulerLeaseName+".lock")), nil
	case BackendSQL:
		if leases == nil {
			return nil, fmt.Errorf("lease store is required for the sql backend")
		}
		holder := opts.Holder
		if holder == "" {
			holder = HolderID()
		}
		return NewSQLLease(leases, SchedulerLeaseName, holder, opts.TTL), nil
	default:
		return nil, fmt.Errorf("unknown lease backend: %s (valid options: file, sql)", opts.Backend)
	}
}

// HolderID returns host:pid for this process.
func HolderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
