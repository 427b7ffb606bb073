package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/schematic/internal/storage"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

func newExportCmd(flags *rootFlags) *cobra.Command {
	var (
		format  string
		out     string
		pkgName string
	)
	cmd := &cobra.Command{
		Use:   "export <scheme>",
		Short: "Write a loaded scheme as CSV, JSON or Go source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()
			if pkgName != "" {
				s.reg.Formats().Register(storage.NewGoCodegen(storage.GoOptions{Package: pkgName}))
			}
			f, err := s.reg.Formats().Lookup(format)
			if err != nil {
				return withCode(exitUserError, err)
			}
			if _, err := s.load(cmd.Context()); err != nil {
				return err
			}
			scheme, err := s.reg.Scheme(args[0])
			if err != nil {
				return withCode(exitUserError, err)
			}
			text, err := f.Serialize(s.reg.Scope().WithScheme(scheme.SchemeName).WithDriver(f.Name()), scheme)
			if err != nil {
				return withCode(exitLoadError, err)
			}
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			}
			if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
				return withCode(exitLoadError, types.NewError(types.KindIO, "export", types.Scope{Scheme: scheme.SchemeName, Path: out}, err))
			}
			s.logger.Info("scheme exported", zap.String("scheme", scheme.SchemeName), zap.String("path", out), zap.String("format", f.Name()))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", storage.FormatCSV, "output format: csv, json or go")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&pkgName, "package", "", "package clause for --format go")
	return cmd
}
