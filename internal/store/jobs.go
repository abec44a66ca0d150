package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

const jobColumns = `id, kb_id, job_type, target_id, status, progress, message, start_time, end_time, owner, lease_expires_at, create_time, update_time`

// RequeueMessage is written to jobs whose worker lease expired.
const RequeueMessage = "requeued: worker lease expired"

// CreateJob inserts a PENDING job and sets its ID.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) error {
	if job.KbID == 0 {
		return kberrors.Validation("job kbId is required")
	}
	if job.JobType == "" {
		job.JobType = JobTypeParseFile
	}
	if job.Status == "" {
		job.Status = JobPending
	}

	now := s.now()
	var target sql.NullInt64
	if job.TargetID != nil {
		target = sql.NullInt64{Int64: *job.TargetID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_job (kb_id, job_type, target_id, status, progress, message, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.KbID, string(job.JobType), target, string(job.Status), job.Progress,
		nullString(job.Message), toMillis(now), toMillis(now))
	if err != nil {
		return kberrors.Database("create job", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return kberrors.Database("create job", err)
	}
	job.ID = id
	job.CreateTime, job.UpdateTime = fromMillis(toMillis(now)), fromMillis(toMillis(now))
	return nil
}

// GetJob returns the job or a NotFound error.
func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM kb_job WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.NotFound("job", id)
	}
	if err != nil {
		return nil, kberrors.Database("get job", err)
	}
	return job, nil
}

// ListPendingJobs returns up to limit PENDING jobs of jobType, oldest first.
func (s *SQLiteStore) ListPendingJobs(ctx context.Context, jobType JobType, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM kb_job WHERE job_type = ? AND status = ? ORDER BY id ASC LIMIT ?`,
		string(jobType), string(JobPending), limit)
	if err != nil {
		return nil, kberrors.Database("list pending jobs", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, kberrors.Database("scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, kberrors.Database("list pending jobs", err)
	}
	return jobs, nil
}

// ClaimJob moves a PENDING job to RUNNING for owner. It reports false
// when the job is no longer PENDING. Start time is set; progress,
// message and end time are cleared.
func (s *SQLiteStore) ClaimJob(ctx context.Context, id int64, owner string, leaseUntil time.Time) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE kb_job
		SET status = ?, progress = 0, message = NULL, start_time = ?, end_time = NULL,
		    owner = ?, lease_expires_at = ?, update_time = ?
		WHERE id = ? AND status = ?`,
		string(JobRunning), toMillis(now), owner, toMillis(leaseUntil), toMillis(now),
		id, string(JobPending))
	if err != nil {
		return false, kberrors.Database("claim job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, kberrors.Database("claim job", err)
	}
	return n == 1, nil
}

// Checkpoint writes progress and a stage message to both the job and its
// file, and extends the job's lease.
func (s *SQLiteStore) Checkpoint(ctx context.Context, jobID, fileID int64, progress int, message string, leaseUntil time.Time) error {
	now := toMillis(s.now())
	return s.withTx(ctx, "checkpoint", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE kb_job SET progress = ?, message = ?, lease_expires_at = ?, update_time = ? WHERE id = ?`,
			progress, nullString(message), toMillis(leaseUntil), now, jobID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE kb_file SET parse_progress = ?, parse_message = ?, update_time = ? WHERE id = ?`,
			progress, nullString(message), now, fileID)
		return err
	})
}

// CompleteJob marks the job and file SUCCESS at 100%.
func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID, fileID int64, message string) error {
	now := toMillis(s.now())
	return s.withTx(ctx, "complete job", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE kb_job
			SET status = ?, progress = 100, message = ?, end_time = ?, owner = NULL, lease_expires_at = NULL, update_time = ?
			WHERE id = ?`,
			string(JobSuccess), nullString(message), now, now, jobID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE kb_file
			SET parse_status = ?, parse_progress = 100, parse_message = ?, parsed_time = ?, update_time = ?
			WHERE id = ?`,
			string(ParseSuccess), nullString(message), now, now, fileID)
		return err
	})
}

// FailJob marks the job FAILED with zero progress and an end time. When
// fileID is non-zero the file is marked FAILED with its parsed time
// cleared. Chunks are not touched.
func (s *SQLiteStore) FailJob(ctx context.Context, jobID, fileID int64, message string) error {
	now := toMillis(s.now())
	return s.withTx(ctx, "fail job", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE kb_job
			SET status = ?, progress = 0, message = ?, end_time = ?, owner = NULL, lease_expires_at = NULL, update_time = ?
			WHERE id = ?`,
			string(JobFailed), nullString(message), now, now, jobID); err != nil {
			return err
		}
		if fileID == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE kb_file
			SET parse_status = ?, parse_progress = 0, parse_message = ?, parsed_time = NULL, update_time = ?
			WHERE id = ?`,
			string(ParseFailed), nullString(message), now, fileID)
		return err
	})
}

// RequeueExpiredJobs returns RUNNING jobs whose lease ended before now to
// PENDING, along with their files. It returns the number requeued.
func (s *SQLiteStore) RequeueExpiredJobs(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.withTx(ctx, "requeue expired jobs", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, target_id FROM kb_job
			WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
			string(JobRunning), toMillis(now))
		if err != nil {
			return err
		}

		type expired struct {
			id     int64
			target sql.NullInt64
		}
		var jobs []expired
		for rows.Next() {
			var e expired
			if err := rows.Scan(&e.id, &e.target); err != nil {
				_ = rows.Close()
				return err
			}
			jobs = append(jobs, e)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		ts := toMillis(s.now())
		for _, e := range jobs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE kb_job
				SET status = ?, progress = 0, message = ?, start_time = NULL, owner = NULL, lease_expires_at = NULL, update_time = ?
				WHERE id = ? AND status = ?`,
				string(JobPending), RequeueMessage, ts, e.id, string(JobRunning)); err != nil {
				return err
			}
			if e.target.Valid {
				if _, err := tx.ExecContext(ctx, `
					UPDATE kb_file SET parse_status = ?, parse_progress = 0, parse_message = ?, update_time = ? WHERE id = ?`,
					string(ParsePending), RequeueMessage, ts, e.target.Int64); err != nil {
					return err
				}
			}
		}
		count = len(jobs)
		return nil
	})
	return count, err
}

func scanJob(row scanner) (*Job, error) {
	var (
		job                    Job
		jobType, status        string
		target                 sql.NullInt64
		msg, owner             sql.NullString
		start, end, lease      sql.NullInt64
		createTime, updateTime int64
	)
	if err := row.Scan(&job.ID, &job.KbID, &jobType, &target, &status, &job.Progress, &msg,
		&start, &end, &owner, &lease, &createTime, &updateTime); err != nil {
		return nil, err
	}
	job.JobType = JobType(jobType)
	job.Status = JobStatus(status)
	if target.Valid {
		id := target.Int64
		job.TargetID = &id
	}
	job.Message = msg.String
	job.StartTime = timePtr(start)
	job.EndTime = timePtr(end)
	job.Owner = owner.String
	job.LeaseExpiresAt = timePtr(lease)
	job.CreateTime = fromMillis(createTime)
	job.UpdateTime = fromMillis(updateTime)
	return &job, nil
}
