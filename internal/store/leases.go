package store

import (
	"context"
	"database/sql"
	"time"
)

// TryAcquireLease takes the named lease for holder until now+ttl. It
// succeeds when the lease is free, expired, or already held by holder,
// and never waits.
func (s *SQLiteStore) TryAcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := s.now()
	var acquired bool
	err := s.withTx(ctx, "acquire lease", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO kb_lease (name, holder, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
			WHERE kb_lease.expires_at < ? OR kb_lease.holder = excluded.holder`,
			name, holder, toMillis(now.Add(ttl)), toMillis(now))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		acquired = n == 1
		return nil
	})
	return acquired, err
}

// ReleaseLease drops the named lease if holder still owns it.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, name, holder string) error {
	return s.withTx(ctx, "release lease", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM kb_lease WHERE name = ? AND holder = ?`, name, holder)
		return err
	})
}
