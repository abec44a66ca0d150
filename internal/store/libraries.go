package store

import (
	"context"
	"database/sql"
	"errors"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

const libraryColumns = `id, name, index_mode, index_version, index_status, text_config, vector_config, create_time, update_time`

// CreateLibrary inserts lib and sets its ID. A zero IndexVersion starts at 1.
func (s *SQLiteStore) CreateLibrary(ctx context.Context, lib *Library) error {
	now := s.now()
	if lib.IndexVersion == 0 {
		lib.IndexVersion = 1
	}
	if lib.IndexStatus == "" {
		lib.IndexStatus = IndexAvailable
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_library (name, index_mode, index_version, index_status, text_config, vector_config, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lib.Name, nullString(string(lib.IndexMode)), lib.IndexVersion, string(lib.IndexStatus),
		nullString(lib.TextConfig), nullString(lib.VectorConfig), toMillis(now), toMillis(now))
	if err != nil {
		return kberrors.Database("create library", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return kberrors.Database("create library", err)
	}
	lib.ID = id
	lib.CreateTime, lib.UpdateTime = fromMillis(toMillis(now)), fromMillis(toMillis(now))
	return nil
}

// GetLibrary returns the library or a NotFound error.
func (s *SQLiteStore) GetLibrary(ctx context.Context, id int64) (*Library, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+libraryColumns+` FROM kb_library WHERE id = ?`, id)
	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.NotFound("library", id)
	}
	if err != nil {
		return nil, kberrors.Database("get library", err)
	}
	return lib, nil
}

// UpdateLibraryIndexConfig persists the mode, version, status and both
// config blobs of lib.
func (s *SQLiteStore) UpdateLibraryIndexConfig(ctx context.Context, lib *Library) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE kb_library
		SET index_mode = ?, index_version = ?, index_status = ?, text_config = ?, vector_config = ?, update_time = ?
		WHERE id = ?`,
		nullString(string(lib.IndexMode)), lib.IndexVersion, string(lib.IndexStatus),
		nullString(lib.TextConfig), nullString(lib.VectorConfig), toMillis(s.now()), lib.ID)
	if err != nil {
		return kberrors.Database("update library index config", err)
	}
	return expectOne(res, "library", lib.ID)
}

// SetLibraryIndexStatus updates only the index status.
func (s *SQLiteStore) SetLibraryIndexStatus(ctx context.Context, id int64, status IndexStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kb_library SET index_status = ?, update_time = ? WHERE id = ?`,
		string(status), toMillis(s.now()), id)
	if err != nil {
		return kberrors.Database("set library index status", err)
	}
	return expectOne(res, "library", id)
}

func scanLibrary(row scanner) (*Library, error) {
	var (
		lib                    Library
		mode, textCfg, vecCfg  sql.NullString
		status                 string
		createTime, updateTime int64
	)
	if err := row.Scan(&lib.ID, &lib.Name, &mode, &lib.IndexVersion, &status,
		&textCfg, &vecCfg, &createTime, &updateTime); err != nil {
		return nil, err
	}
	lib.IndexMode = IndexMode(mode.String)
	lib.IndexStatus = IndexStatus(status)
	lib.TextConfig = textCfg.String
	lib.VectorConfig = vecCfg.String
	lib.CreateTime = fromMillis(createTime)
	lib.UpdateTime = fromMillis(updateTime)
	return &lib, nil
}

func expectOne(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return kberrors.Database("rows affected", err)
	}
	if n == 0 {
		return kberrors.NotFound(kind, id)
	}
	return nil
}
