package textindex

import (
	"fmt"

	"github.com/Aman-CERP/amankb/internal/config"
)

// Backend names accepted by text_index.backend.
const (
	BackendOpenSearch = backendOpenSearch
	BackendBleve      = backendBleve
)

// NewClient creates the Client selected by cfg.Backend.
//
// backend options:
//   - "opensearch" (default): remote OpenSearch-compatible cluster
//   - "bleve": embedded index under cfg.BleveDir, in memory when empty
func NewClient(cfg config.TextIndexConfig) (Client, error) {
	switch cfg.Backend {
	case BackendOpenSearch, "":
		return NewOpenSearchClient(OpenSearchConfig{
			URL:        cfg.URL,
			Username:   cfg.Username,
			Password:   cfg.Password,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case BackendBleve:
		return NewBleveClient(cfg.BleveDir)
	default:
		return nil, fmt.Errorf("unknown text index backend: %s (valid options: opensearch, bleve)", cfg.Backend)
	}
}
