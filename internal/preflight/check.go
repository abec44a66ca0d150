package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Probe is a named reachability test against a dependency.
type Probe struct {
	Name     string
	Required bool
	// Check returns nil when the dependency answers. A nil Check reports
	// the dependency as disabled.
	Check func(ctx context.Context) error
}

// DefaultProbeTimeout bounds each probe.
const DefaultProbeTimeout = 5 * time.Second

// Config selects what a Checker inspects.
type Config struct {
	StorageRoot  string
	Probes       []Probe
	ProbeTimeout time.Duration
}

// Checker performs preflight validation checks.
type Checker struct {
	cfg Config
}

// New creates a Checker.
func New(cfg Config) *Checker {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Checker{cfg: cfg}
}

// RunAll runs every check in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.CheckDiskSpace(c.cfg.StorageRoot),
		c.CheckWritePermissions(c.cfg.StorageRoot),
		c.CheckFileDescriptors(),
	}
	for _, p := range c.cfg.Probes {
		results = append(results, c.RunProbe(ctx, p))
	}
	return results
}

// RunProbe runs one probe under the probe timeout.
func (c *Checker) RunProbe(ctx context.Context, p Probe) CheckResult {
	result := CheckResult{Name: p.Name, Required: p.Required}
	if p.Check == nil {
		result.Status = StatusWarn
		result.Message = "disabled"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	if err := p.Check(ctx); err != nil {
		result.Status = StatusFail
		result.Message = kberrors.SafeMessage(err, 200)
		if ke, ok := kberrors.As(err); ok {
			result.Details = ke.Suggestion
		}
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("OK (%s)", time.Since(start).Round(time.Millisecond))
	return result
}

// CheckWritePermissions checks that files can be created under path.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{Name: "storage_writable", Required: true}

	if err := os.MkdirAll(path, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", path, err)
		return result
	}
	probe := filepath.Join(path, ".amankb-preflight")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = path
	return result
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus is "failed", "ready_with_warnings" or "ready".
func SummaryStatus(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}
