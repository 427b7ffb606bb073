package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/schematic/internal/command"
	"github.com/mesh-intelligence/schematic/internal/fileio"
	"github.com/mesh-intelligence/schematic/internal/logging"
	"github.com/mesh-intelligence/schematic/internal/metrics"
	"github.com/mesh-intelligence/schematic/internal/paths"
	"github.com/mesh-intelligence/schematic/internal/registry"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

// session is one CLI invocation's engine: configuration, file system,
// registry and command history.
type session struct {
	cfg          types.Config
	logger       *zap.Logger
	fs           types.FileSystem
	reg          *registry.Registry
	history      *command.History
	env          *command.Env
	manifestPath string
	gatherer     prometheus.Gatherer
}

// openSession resolves configuration, locates the manifest and opens the
// file system. It does not load anything.
func openSession(ctx context.Context, flags *rootFlags) (*session, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return nil, withCode(exitUserError, err)
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, withCode(exitUserError, err)
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if cfg.Driver == types.DriverSQLite && (cfg.SQLite.Path == "" || flags.dataDir != "") {
		dataDir, err := paths.ResolveDataDir(flags.dataDir, "")
		if err != nil {
			return nil, withCode(exitUserError, err)
		}
		cfg.SQLite.Path = filepath.Join(dataDir, paths.DefaultDatabaseName)
	}

	manifestPath := flags.manifest
	if cfg.Driver == types.DriverLocal {
		root := flags.project
		if root == "" {
			root = cfg.ContentDir
		}
		found, err := paths.FindManifest(flags.manifest, root)
		if err != nil {
			return nil, withCode(exitManifestNotFound, err)
		}
		cfg.ContentDir = filepath.Dir(found)
		manifestPath = filepath.Base(found)
	} else if manifestPath == "" {
		manifestPath = paths.ManifestFileName
	}

	if err := cfg.Validate(); err != nil {
		return nil, withCode(exitUserError, fmt.Errorf("invalid config: %w", err))
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, withCode(exitUserError, err)
	}

	fs, err := fileio.Open(ctx, cfg)
	if err != nil {
		return nil, withCode(exitLoadError, err)
	}
	if cfg.Driver != types.DriverLocal {
		ok, err := fs.FileExists(ctx, manifestPath)
		if err != nil || !ok {
			closeFS(fs)
			return nil, withCode(exitManifestNotFound, errors.Join(fmt.Errorf("%w: %s", paths.ErrManifestNotFound, manifestPath), err))
		}
	}

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	if err != nil {
		closeFS(fs)
		return nil, withCode(exitLoadError, err)
	}
	reg, err := registry.New(registry.Options{
		FS:            fs,
		DefaultFormat: cfg.FormatName(),
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		closeFS(fs)
		return nil, withCode(exitUserError, err)
	}
	history, err := command.NewHistory(cfg.HistorySize(), logger)
	if err != nil {
		closeFS(fs)
		return nil, withCode(exitUserError, err)
	}
	return &session{
		cfg:          cfg,
		logger:       logger,
		fs:           fs,
		reg:          reg,
		history:      history,
		env:          &command.Env{Registry: reg, Logger: logger, Metrics: m},
		manifestPath: manifestPath,
		gatherer:     promReg,
	}, nil
}

// load reads the manifest and every scheme it lists. Per-scheme failures are
// logged and returned in the report; only a fatal load is an error.
func (s *session) load(ctx context.Context) (*registry.LoadReport, error) {
	report, err := s.reg.LoadManifest(ctx, s.manifestPath)
	if err != nil {
		return nil, withCode(exitLoadError, err)
	}
	return report, nil
}

func (s *session) Close() error {
	_ = s.logger.Sync()
	return closeFS(s.fs)
}

func closeFS(fs types.FileSystem) error {
	if c, ok := fs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
