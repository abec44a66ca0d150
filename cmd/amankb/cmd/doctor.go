package cmd

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check storage, database and index backends",
		Long: `Check that the storage root is writable with enough free space and that
the metadata store, the text index and the vector service answer.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				results := a.preflight().RunAll(cmd.Context())

				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					if err := out.JSON(map[string]any{
						"status": preflight.SummaryStatus(results),
						"checks": results,
					}); err != nil {
						return err
					}
				} else {
					printChecks(out, results)
				}
				if preflight.HasCriticalFailures(results) {
					return kberrors.ConfigError("preflight checks failed", nil)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// preflight builds a checker over the wired dependencies.
func (a *app) preflight() *preflight.Checker {
	probes := []preflight.Probe{
		{Name: "database", Required: true, Check: a.store.Ping},
		{Name: "text_index", Check: func(ctx context.Context) error {
			return a.textClient.Refresh(ctx, a.text.Index())
		}},
	}
	vector := preflight.Probe{Name: "vector_index"}
	if a.vector != nil {
		vector.Check = dialProbe(a.cfg.VectorIndex.BaseURL)
	}
	probes = append(probes, vector)

	return preflight.New(preflight.Config{
		StorageRoot: a.cfg.Storage.Root,
		Probes:      probes,
	})
}

// dialProbe checks that the host behind rawURL accepts TCP connections.
func dialProbe(rawURL string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			return kberrors.ConfigError(fmt.Sprintf("invalid url %q", rawURL), err)
		}
		host := u.Host
		if u.Port() == "" {
			port := "80"
			if strings.EqualFold(u.Scheme, "https") {
				port = "443"
			}
			host = net.JoinHostPort(u.Hostname(), port)
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

func printChecks(out *output.Writer, results []preflight.CheckResult) {
	out.Header("amankb doctor")
	for _, r := range results {
		line := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch r.Status {
		case preflight.StatusPass:
			out.Success(line)
		case preflight.StatusWarn:
			out.Warning(line)
		default:
			out.Error(line)
		}
		if r.Details != "" {
			out.Status("  ", r.Details)
		}
	}
	out.Newline()
	out.Statusf("📋", "Status: %s", strings.ToUpper(preflight.SummaryStatus(results)))
}
