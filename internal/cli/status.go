package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/schematic/internal/registry"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

type schemeStatus struct {
	Name     string `json:"name"`
	FilePath string `json:"file_path,omitempty"`
	Entries  int    `json:"entries"`
	Dirty    bool   `json:"dirty,omitempty"`
}

type failureStatus struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

type statusOutput struct {
	Manifest          string          `json:"manifest"`
	Driver            string          `json:"driver"`
	Schemes           []schemeStatus  `json:"schemes"`
	Skipped           []string        `json:"skipped,omitempty"`
	Failed            []failureStatus `json:"failed,omitempty"`
	MissingSelfRecord bool            `json:"missing_self_record,omitempty"`
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var showMetrics bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Load the manifest and list its schemes",
		Long: "Locate the manifest (--manifest, <project>/Content/Manifest.json, or the\n" +
			"first Manifest.json found under the project), load every scheme it lists\n" +
			"and report what loaded, what was skipped and what failed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.load(cmd.Context())
			if err != nil {
				return err
			}
			out := buildStatus(s, report)
			if flags.jsonMode {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				printStatus(cmd.OutOrStdout(), out)
			}
			if showMetrics {
				return writeMetrics(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print engine metrics after the report")
	return cmd
}

func buildStatus(s *session, report *registry.LoadReport) statusOutput {
	out := statusOutput{
		Manifest:          report.ManifestPath,
		Driver:            s.cfg.Driver,
		Schemes:           []schemeStatus{},
		Skipped:           report.Skipped,
		MissingSelfRecord: report.MissingSelfRecord,
	}
	records := map[string]string{}
	if manifest, ok := s.reg.Manifest(); ok {
		for _, rec := range types.ManifestRecords(manifest) {
			records[rec.SchemeName] = rec.FilePath
		}
	}
	for _, name := range s.reg.SchemeNames() {
		scheme, ok := s.reg.LookupScheme(name)
		if !ok {
			continue
		}
		out.Schemes = append(out.Schemes, schemeStatus{
			Name:     name,
			FilePath: records[name],
			Entries:  scheme.EntryCount(),
			Dirty:    scheme.IsDirty(),
		})
	}
	for _, f := range report.Failed {
		out.Failed = append(out.Failed, failureStatus{Name: f.Scheme, Path: f.Path, Error: f.Err.Error()})
	}
	return out
}

func printStatus(w io.Writer, out statusOutput) {
	fmt.Fprintf(w, "manifest: %s (%s)\n", out.Manifest, out.Driver)
	if out.MissingSelfRecord {
		fmt.Fprintln(w, "warning: manifest does not list itself; saving it will fail")
	}
	fmt.Fprintf(w, "schemes: %d\n", len(out.Schemes))
	for _, sc := range out.Schemes {
		fmt.Fprintf(w, "  %-24s %6d entries  %s\n", sc.Name, sc.Entries, sc.FilePath)
	}
	for _, name := range out.Skipped {
		fmt.Fprintf(w, "skipped: %s (no file path)\n", name)
	}
	for _, f := range out.Failed {
		fmt.Fprintf(w, "failed: %s (%s): %s\n", f.Name, f.Path, f.Error)
	}
}

func writeMetrics(w io.Writer, s *session) error {
	families, err := s.gatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
