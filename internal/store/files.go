package store

import (
	"context"
	"database/sql"
	"errors"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

const fileColumns = `id, kb_id, file_name, storage_type, storage_path, parse_status, parse_progress, parse_message, parsed_time, create_time, update_time`

// CreateFile registers an uploaded file as PENDING and sets its ID.
func (s *SQLiteStore) CreateFile(ctx context.Context, f *File) error {
	if f.KbID == 0 {
		return kberrors.Validation("file kbId is required")
	}
	if f.StorageType == "" {
		f.StorageType = StorageLocal
	}
	if f.ParseStatus == "" {
		f.ParseStatus = ParsePending
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_file (kb_id, file_name, storage_type, storage_path, parse_status, parse_progress, parse_message, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.KbID, f.FileName, f.StorageType, f.StoragePath, string(f.ParseStatus), f.ParseProgress,
		nullString(f.ParseMessage), toMillis(now), toMillis(now))
	if err != nil {
		return kberrors.Database("create file", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return kberrors.Database("create file", err)
	}
	f.ID = id
	f.CreateTime, f.UpdateTime = fromMillis(toMillis(now)), fromMillis(toMillis(now))
	return nil
}

// GetFile returns a live file or a NotFound error.
func (s *SQLiteStore) GetFile(ctx context.Context, id int64) (*File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM kb_file WHERE id = ? AND deleted_flag = ?`, id, flagActive)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.NotFound("file", id)
	}
	if err != nil {
		return nil, kberrors.Database("get file", err)
	}
	return f, nil
}

// ListFilesByKb returns the live files of a library ordered by id.
func (s *SQLiteStore) ListFilesByKb(ctx context.Context, kbID int64) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM kb_file WHERE kb_id = ? AND deleted_flag = ? ORDER BY id ASC`,
		kbID, flagActive)
	if err != nil {
		return nil, kberrors.Database("list files", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, kberrors.Database("scan file", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, kberrors.Database("list files", err)
	}
	return files, nil
}

// StartFileParse moves a file to PARSING with progress, message and
// parsed time cleared.
func (s *SQLiteStore) StartFileParse(ctx context.Context, fileID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE kb_file
		SET parse_status = ?, parse_progress = 0, parse_message = NULL, parsed_time = NULL, update_time = ?
		WHERE id = ?`,
		string(ParseParsing), toMillis(s.now()), fileID)
	if err != nil {
		return kberrors.Database("start file parse", err)
	}
	return expectOne(res, "file", fileID)
}

func scanFile(row scanner) (*File, error) {
	var (
		f                      File
		status                 string
		msg                    sql.NullString
		parsed                 sql.NullInt64
		createTime, updateTime int64
	)
	if err := row.Scan(&f.ID, &f.KbID, &f.FileName, &f.StorageType, &f.StoragePath,
		&status, &f.ParseProgress, &msg, &parsed, &createTime, &updateTime); err != nil {
		return nil, err
	}
	f.ParseStatus = ParseStatus(status)
	f.ParseMessage = msg.String
	f.ParsedTime = timePtr(parsed)
	f.CreateTime = fromMillis(createTime)
	f.UpdateTime = fromMillis(updateTime)
	return &f, nil
}
