// Package library manages a knowledge base's index configuration and its
// version. Any change to the mode or either config blob bumps the
// version and marks the indexes DISABLED until they are rebuilt.
package library

import (
	"context"
	"log/slog"
	"strings"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
)

// EmptyConfig is stored for a blank config blob.
const EmptyConfig = "{}"

// DefaultVectorConfig is applied when a vector-capable mode is saved
// without a vector config.
const DefaultVectorConfig = `{"embeddingModel":"text-embedding-v4","dim":1024,"batch":10,"topK":5}`

// IndexConfig is the user-editable part of a library.
type IndexConfig struct {
	Mode         store.IndexMode
	TextConfig   string
	VectorConfig string
}

// Of returns the index config persisted on lib.
func Of(lib *store.Library) IndexConfig {
	return IndexConfig{Mode: lib.Mode(), TextConfig: lib.TextConfig, VectorConfig: lib.VectorConfig}
}

// Changed reports whether applying next over prev needs a rebuild. Config
// blobs are compared after trimming, with blank equal to blank.
func Changed(prev, next IndexConfig) bool {
	return store.NormalizeIndexMode(string(prev.Mode)) != store.NormalizeIndexMode(string(next.Mode)) ||
		strings.TrimSpace(prev.TextConfig) != strings.TrimSpace(next.TextConfig) ||
		strings.TrimSpace(prev.VectorConfig) != strings.TrimSpace(next.VectorConfig)
}

// NextVersion returns the version after a config change.
func NextVersion(old int) int {
	if old <= 0 {
		return 1
	}
	return old + 1
}

// Service saves and resets index configurations.
type Service struct {
	libs store.LibraryStore
}

// NewService returns a Service.
func NewService(libs store.LibraryStore) *Service {
	return &Service{libs: libs}
}

// SaveIndexConfig validates and stores a new configuration. mode may be a
// canonical mode or a legacy alias; anything else is a validation error.
// The version is bumped and the status set to DISABLED only when the
// stored configuration actually changes.
func (s *Service) SaveIndexConfig(ctx context.Context, kbID int64, mode, textConfig, vectorConfig string) (*store.Library, error) {
	if kbID <= 0 {
		return nil, kberrors.Validation("kbId is required")
	}
	normalized, ok := store.ParseIndexMode(mode)
	if !ok {
		return nil, kberrors.Validation("invalid index mode %q: expected TEXT_OS, VECTOR or HYBRID (BM25 and EMBEDDING are accepted)", mode)
	}

	lib, err := s.libs.GetLibrary(ctx, kbID)
	if err != nil {
		return nil, err
	}

	next := IndexConfig{
		Mode:         normalized,
		TextConfig:   orEmpty(textConfig),
		VectorConfig: strings.TrimSpace(vectorConfig),
	}
	if next.VectorConfig == "" {
		if normalized.UsesVector() {
			next.VectorConfig = DefaultVectorConfig
		} else {
			next.VectorConfig = EmptyConfig
		}
	}

	return s.apply(ctx, lib, next, false)
}

// ResetIndexConfig restores TEXT_OS with empty configs. The version is
// always bumped.
func (s *Service) ResetIndexConfig(ctx context.Context, kbID int64) (*store.Library, error) {
	lib, err := s.libs.GetLibrary(ctx, kbID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, lib, IndexConfig{Mode: store.ModeTextOS, TextConfig: EmptyConfig, VectorConfig: EmptyConfig}, true)
}

func (s *Service) apply(ctx context.Context, lib *store.Library, next IndexConfig, force bool) (*store.Library, error) {
	prev := Of(lib)
	changed := Changed(prev, next)
	if !changed && !force {
		slog.Debug("index_config_unchanged", slog.Int64("kb_id", lib.ID))
		return lib, nil
	}

	oldVersion := lib.IndexVersion
	lib.IndexMode = next.Mode
	lib.TextConfig = next.TextConfig
	lib.VectorConfig = next.VectorConfig
	lib.IndexVersion = NextVersion(oldVersion)
	lib.IndexStatus = store.IndexDisabled

	if err := s.libs.UpdateLibraryIndexConfig(ctx, lib); err != nil {
		return nil, err
	}

	slog.Info("index_config_changed",
		slog.Int64("kb_id", lib.ID),
		slog.Int("old_version", oldVersion),
		slog.Int("new_version", lib.IndexVersion),
		slog.Bool("mode_changed", prev.Mode != next.Mode),
		slog.Bool("text_config_changed", strings.TrimSpace(prev.TextConfig) != next.TextConfig),
		slog.Bool("vector_config_changed", strings.TrimSpace(prev.VectorConfig) != next.VectorConfig),
		slog.Bool("reset", force))
	return lib, nil
}

func orEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return EmptyConfig
	}
	return s
}
