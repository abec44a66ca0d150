package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/chunk"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/library"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/textindex"
	"github.com/Aman-CERP/amankb/internal/worker"
)

type apiFixture struct {
	store  *store.SQLiteStore
	lib    *store.Library
	file   *store.File
	job    *store.Job
	server *Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	lib := &store.Library{Name: "policies", IndexMode: store.ModeTextOS}
	require.NoError(t, s.CreateLibrary(ctx, lib))
	f := &store.File{KbID: lib.ID, FileName: "travel.txt", StoragePath: "travel.txt"}
	require.NoError(t, s.CreateFile(ctx, f))
	job := &store.Job{KbID: lib.ID, TargetID: &f.ID}
	require.NoError(t, s.CreateJob(ctx, job))
	_, err = s.ReplaceChunks(ctx, lib.ID, f.ID, []chunk.Piece{
		{ChunkIndex: 0, Content: "Travel must be booked through the portal."},
		{ChunkIndex: 1, Content: "Refunds for cancelled travel take ten days."},
	}, 0)
	require.NoError(t, err)

	bleveClient, err := textindex.NewBleveClient("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bleveClient.Close() })
	text := textindex.NewService(bleveClient, s, "kb_chunk", 0)

	dispatcher, err := index.NewDispatcher(index.DispatcherDependencies{Files: s, Libraries: s, Text: text})
	require.NoError(t, err)

	server := New(Dependencies{
		Jobs: s, Files: s,
		Reindexer: dispatcher,
		Searcher:  text,
		Libraries: library.NewService(s),
		DB:        s,
		Worker:    func() worker.StatusSnapshot { return worker.StatusSnapshot{Ticks: 3} },
	})
	return &apiFixture{store: s, lib: lib, file: f, job: job, server: server}
}

func (fx *apiFixture) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestAPI_Health(t *testing.T) {
	fx := newAPIFixture(t)

	code, body := fx.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(3), body["worker"].(map[string]any)["ticks"])
}

func TestAPI_GetJobAndFile(t *testing.T) {
	fx := newAPIFixture(t)

	code, body := fx.do(t, http.MethodGet, "/api/v1/jobs/"+itoa(fx.job.ID), "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "PARSE_FILE", body["jobType"])
	assert.Equal(t, float64(fx.file.ID), body["targetId"])

	code, body = fx.do(t, http.MethodGet, "/api/v1/files/"+itoa(fx.file.ID), "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "travel.txt", body["fileName"])
	assert.Equal(t, "PENDING", body["parseStatus"])
}

func TestAPI_Errors(t *testing.T) {
	fx := newAPIFixture(t)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown job", http.MethodGet, "/api/v1/jobs/404", "", http.StatusNotFound, kberrors.ErrCodeNotFound},
		{"bad id", http.MethodGet, "/api/v1/files/abc", "", http.StatusBadRequest, kberrors.ErrCodeValidation},
		{"search without keyword", http.MethodGet, "/api/v1/search?kbId=1", "", http.StatusBadRequest, kberrors.ErrCodeValidation},
		{"bad mode", http.MethodPut, "/api/v1/libraries/" + itoa(fx.lib.ID) + "/index-config", `{"indexMode":"GRAPH"}`, http.StatusBadRequest, kberrors.ErrCodeValidation},
		{"reindex unknown library", http.MethodPost, "/api/v1/reindex/libraries/999", "", http.StatusNotFound, kberrors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := fx.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantErr, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAPI_ReindexThenSearch(t *testing.T) {
	// Given: chunks stored but not yet indexed
	fx := newAPIFixture(t)

	// When: the library is rebuilt
	code, body := fx.do(t, http.MethodPost, "/api/v1/reindex/libraries/"+itoa(fx.lib.ID), "")

	// Then: both chunks are searchable
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "AVAILABLE", body["status"])
	assert.Equal(t, float64(2), body["textDocs"])

	code, body = fx.do(t, http.MethodGet, "/api/v1/search?keyword=refunds&kbId="+itoa(fx.lib.ID), "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(1), body["total"])
	hits := body["hits"].([]any)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].(map[string]any)["highlight"], "<em>Refunds</em>")

	code, body = fx.do(t, http.MethodPost, "/api/v1/reindex/files/"+itoa(fx.file.ID), "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestAPI_IndexConfig(t *testing.T) {
	fx := newAPIFixture(t)
	target := "/api/v1/libraries/" + itoa(fx.lib.ID) + "/index-config"

	code, body := fx.do(t, http.MethodPut, target, `{"indexMode":"hybrid","textConfig":"{\"analyzer\":\"ik\"}"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "HYBRID", body["indexMode"])
	assert.Equal(t, "DISABLED", body["indexStatus"])
	assert.Equal(t, library.DefaultVectorConfig, body["vectorConfig"])
	version := body["indexVersion"].(float64)

	code, body = fx.do(t, http.MethodPost, target+"/reset", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "TEXT_OS", body["indexMode"])
	assert.Equal(t, "{}", body["textConfig"])
	assert.Equal(t, version+1, body["indexVersion"])
}

type failingReindexer struct{}

func (failingReindexer) ReindexFile(context.Context, int64) error {
	return kberrors.Backend("opensearch", "cluster unreachable", nil)
}

func (failingReindexer) ReindexLibrary(_ context.Context, kbID int64) (*index.LibraryResult, error) {
	return &index.LibraryResult{KbID: kbID, Status: store.IndexFailed},
		errors.Join(kberrors.Backend("opensearch", "cluster unreachable", nil))
}

func TestAPI_ReindexBackendFailure(t *testing.T) {
	fx := newAPIFixture(t)
	fx.server = New(Dependencies{Jobs: fx.store, Files: fx.store, Reindexer: failingReindexer{}})

	code, body := fx.do(t, http.MethodPost, "/api/v1/reindex/libraries/5", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "FAILED", body["status"])
	assert.Contains(t, body["error"], "cluster unreachable")

	code, body = fx.do(t, http.MethodPost, "/api/v1/reindex/files/5", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "cluster unreachable", body["error"])
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
