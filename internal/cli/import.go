package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/schematic/internal/command"
	"github.com/mesh-intelligence/schematic/internal/registry"
	"github.com/mesh-intelligence/schematic/internal/storage"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

func newImportCmd(flags *rootFlags) *cobra.Command {
	var (
		schemeName string
		filePath   string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Create a scheme from a CSV file and add it to the manifest",
		Long: "Read a CSV file from local disk, infer its column types, register it as a\n" +
			"new scheme, list it in the manifest and save both.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return withCode(exitUserError, err)
			}
			name := schemeName
			if name == "" {
				name = registry.SchemeNameFromPath(args[0])
			}

			s, err := openSession(ctx, flags)
			if err != nil {
				return err
			}
			defer s.Close()
			if _, err := s.load(ctx); err != nil {
				return err
			}

			scope := s.reg.Scope().WithScheme(name).WithPath(args[0]).WithDriver(storage.FormatCSV)
			scheme, err := storage.NewCSV(nil).Deserialize(scope, string(data))
			if err != nil {
				return withCode(exitUserError, err)
			}
			if filePath == "" {
				f, err := s.reg.Formats().Lookup(s.cfg.FormatName())
				if err != nil {
					return withCode(exitUserError, err)
				}
				filePath = name + f.Extension()
			}

			if _, exists := s.reg.LookupScheme(name); exists {
				if !overwrite {
					return withCode(exitUserError, fmt.Errorf("%w: %s (use --overwrite)", types.ErrSchemeExists, name))
				}
				if err := s.history.Execute(ctx, command.NewUnloadDataScheme(s.env, name, true)); err != nil {
					return withCode(exitUserError, err)
				}
			}
			if err := s.history.Execute(ctx, command.NewCreateDataScheme(s.env, scheme, filePath)); err != nil {
				return withCode(exitUserError, err)
			}
			saved, err := s.reg.SaveDirty(ctx)
			if err != nil {
				return withCode(exitLoadError, err)
			}
			s.logger.Info("scheme imported", zap.String("scheme", name), zap.String("path", filePath),
				zap.Int("entries", scheme.EntryCount()), zap.Strings("saved", saved))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %d attributes, %d entries -> %s\n",
				name, scheme.AttributeCount(), scheme.EntryCount(), filePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemeName, "scheme", "", "scheme name (default: CSV file base name)")
	cmd.Flags().StringVar(&filePath, "file", "", "manifest-relative file to save the scheme to (default: <scheme>.<default format>)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace a scheme of the same name")
	return cmd
}
