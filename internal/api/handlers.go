package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/textindex"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// JobView is the JSON form of a job.
type JobView struct {
	ID        int64      `json:"id"`
	KbID      int64      `json:"kbId"`
	JobType   string     `json:"jobType"`
	TargetID  *int64     `json:"targetId,omitempty"`
	Status    string     `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Owner     string     `json:"owner,omitempty"`
}

// FileView is the JSON form of a file.
type FileView struct {
	ID            int64      `json:"id"`
	KbID          int64      `json:"kbId"`
	FileName      string     `json:"fileName"`
	StorageType   string     `json:"storageType"`
	StoragePath   string     `json:"storagePath"`
	ParseStatus   string     `json:"parseStatus"`
	ParseProgress int        `json:"parseProgress"`
	ParseMessage  string     `json:"parseMessage,omitempty"`
	ParsedTime    *time.Time `json:"parsedTime,omitempty"`
}

// LibraryView is the JSON form of a library's index configuration.
type LibraryView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	IndexMode    string `json:"indexMode"`
	IndexVersion int    `json:"indexVersion"`
	IndexStatus  string `json:"indexStatus"`
	TextConfig   string `json:"textConfig"`
	VectorConfig string `json:"vectorConfig"`
}

// IndexConfigRequest is the body of PUT /libraries/:id/index-config.
type IndexConfigRequest struct {
	IndexMode    string `json:"indexMode"`
	TextConfig   string `json:"textConfig"`
	VectorConfig string `json:"vectorConfig"`
}

// ReindexLibraryResponse wraps a rebuild result with its failure, if any.
type ReindexLibraryResponse struct {
	*index.LibraryResult
	Error string `json:"error,omitempty"`
}

func toJobView(j *store.Job) JobView {
	return JobView{
		ID: j.ID, KbID: j.KbID, JobType: string(j.JobType), TargetID: j.TargetID,
		Status: string(j.Status), Progress: j.Progress, Message: j.Message,
		StartTime: j.StartTime, EndTime: j.EndTime, Owner: j.Owner,
	}
}

func toFileView(f *store.File) FileView {
	return FileView{
		ID: f.ID, KbID: f.KbID, FileName: f.FileName, StorageType: f.StorageType,
		StoragePath: f.StoragePath, ParseStatus: string(f.ParseStatus),
		ParseProgress: f.ParseProgress, ParseMessage: f.ParseMessage, ParsedTime: f.ParsedTime,
	}
}

func toLibraryView(l *store.Library) LibraryView {
	return LibraryView{
		ID: l.ID, Name: l.Name, IndexMode: string(l.Mode()), IndexVersion: l.IndexVersion,
		IndexStatus: string(l.IndexStatus), TextConfig: l.TextConfig, VectorConfig: l.VectorConfig,
	}
}

func pathID(c echo.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, kberrors.Validation("invalid id %q", raw)
	}
	return id, nil
}

func queryInt64(c echo.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, kberrors.Validation("invalid %s %q", name, raw)
	}
	return n, nil
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 800*time.Millisecond)
	defer cancel()

	body := map[string]any{"ok": true}
	status := http.StatusOK
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(ctx); err != nil {
			body["ok"] = false
			body["db"] = kberrors.SafeMessage(err, 200)
			status = http.StatusServiceUnavailable
		}
	}
	if s.deps.Worker != nil {
		body["worker"] = s.deps.Worker()
	}
	return c.JSON(status, body)
}

func (s *Server) getJob(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	job, err := s.deps.Jobs.GetJob(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toJobView(job))
}

func (s *Server) getFile(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	f, err := s.deps.Files.GetFile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toFileView(f))
}

func (s *Server) reindexFile(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.deps.Reindexer.ReindexFile(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"fileId": id, "ok": true})
}

func (s *Server) reindexLibrary(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := s.deps.Reindexer.ReindexLibrary(c.Request().Context(), id)
	if res == nil {
		return err
	}
	if err != nil {
		return c.JSON(statusFor(err), ReindexLibraryResponse{LibraryResult: res, Error: kberrors.SafeMessage(err, 0)})
	}
	return c.JSON(http.StatusOK, ReindexLibraryResponse{LibraryResult: res})
}

func (s *Server) search(c echo.Context) error {
	req := textindex.SearchRequest{Keyword: strings.TrimSpace(c.QueryParam("keyword"))}
	var err error
	if req.KbID, err = queryInt64(c, "kbId"); err != nil {
		return err
	}
	if req.FileID, err = queryInt64(c, "fileId"); err != nil {
		return err
	}
	pageNum, err := queryInt64(c, "pageNum")
	if err != nil {
		return err
	}
	pageSize, err := queryInt64(c, "pageSize")
	if err != nil {
		return err
	}
	req.PageNum, req.PageSize = int(pageNum), int(pageSize)
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	req.PageSize = min(req.PageSize, maxPageSize)

	res, err := s.deps.Searcher.Search(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) saveIndexConfig(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var body IndexConfigRequest
	if err := c.Bind(&body); err != nil {
		return kberrors.Validation("invalid json body")
	}
	lib, err := s.deps.Libraries.SaveIndexConfig(c.Request().Context(), id, body.IndexMode, body.TextConfig, body.VectorConfig)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toLibraryView(lib))
}

func (s *Server) resetIndexConfig(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	lib, err := s.deps.Libraries.ResetIndexConfig(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toLibraryView(lib))
}
