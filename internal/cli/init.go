package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/schematic/internal/fileio"
	"github.com/mesh-intelligence/schematic/internal/paths"
	"github.com/mesh-intelligence/schematic/internal/registry"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init [project]",
		Short: "Write a default config and create an empty project manifest",
		Long: "Write config.yaml to the config directory if it is missing, then create\n" +
			"<project>/Content/Manifest.json holding only its own record unless a\n" +
			"manifest already exists there.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			project := flags.project
			if len(args) == 1 {
				project = args[0]
			}
			if project == "" {
				project = "."
			}
			contentDir, err := filepath.Abs(filepath.Join(project, paths.ContentDirName))
			if err != nil {
				return withCode(exitUserError, err)
			}

			configDir, err := paths.ResolveConfigDir(flags.configDir)
			if err != nil {
				return withCode(exitUserError, err)
			}
			configPath, written, err := writeConfigIfMissing(configDir, types.DefaultConfig(contentDir))
			if err != nil {
				return withCode(exitUserError, err)
			}
			if written {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			}

			fs := fileio.NewLocal(contentDir)
			exists, err := fs.FileExists(ctx, paths.ManifestFileName)
			if err != nil {
				return withCode(exitLoadError, err)
			}
			manifestPath := filepath.Join(contentDir, paths.ManifestFileName)
			if exists {
				fmt.Fprintf(cmd.OutOrStdout(), "manifest already exists: %s\n", manifestPath)
				return nil
			}
			reg, err := registry.New(registry.Options{FS: fs})
			if err != nil {
				return withCode(exitUserError, err)
			}
			if _, err := reg.CreateManifest(paths.ManifestFileName); err != nil {
				return withCode(exitLoadError, err)
			}
			if err := reg.SaveManifest(ctx); err != nil {
				return withCode(exitLoadError, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", manifestPath)
			return nil
		},
	}
}
