package lease

import (
	"context"
	"time"

	"github.com/Aman-CERP/amankb/internal/store"
)

// DefaultTTL bounds a SQL lease whose holder died without releasing it.
const DefaultTTL = 30 * time.Second

// SQLLease is a Lease stored as a row with a holder and an expiry. It
// works across hosts sharing one database.
type SQLLease struct {
	leases store.LeaseStore
	name   string
	holder string
	ttl    time.Duration
}

var _ Lease = (*SQLLease)(nil)

// NewSQLLease returns a lease named name for holder.
func NewSQLLease(leases store.LeaseStore, name, holder string, ttl time.Duration) *SQLLease {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLLease{leases: leases, name: name, holder: holder, ttl: ttl}
}

// TryAcquire takes or renews the lease.
func (l *SQLLease) TryAcquire(ctx context.Context) (bool, error) {
	return l.leases.TryAcquireLease(ctx, l.name, l.holder, l.ttl)
}

// Release drops the lease if this holder owns it.
func (l *SQLLease) Release(ctx context.Context) error {
	return l.leases.ReleaseLease(ctx, l.name, l.holder)
}

// Holder returns the holder identity.
func (l *SQLLease) Holder() string {
	return l.holder
}
