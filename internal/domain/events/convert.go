package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/bidsify/internal/domain/entity"
	"github.com/okian/bidsify/pkg/logger"
	"github.com/okian/bidsify/pkg/metrics"
)

// Result summarises one converted log.
type Result struct {
	Source   string
	Output   string
	Events   int
	Warnings []string
}

// Converter turns log files into event TSVs next to them.
type Converter struct {
	configDir  string
	keepSource bool
	logger     logger.Logger
}

// Option applies a configuration option to the Converter.
type Option func(*Converter)

// WithKeepSource leaves the log in place after a successful conversion.
func WithKeepSource(keep bool) Option {
	return func(c *Converter) {
		c.keepSource = keep
	}
}

// WithLogger sets a custom logger for the converter.
func WithLogger(l logger.Logger) Option {
	return func(c *Converter) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConverter creates a Converter that looks up task configs in configDir.
func NewConverter(configDir string, opts ...Option) *Converter {
	c := &Converter{configDir: configDir}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("events")
	}
	return c
}

// ConvertFile converts path using the config of the task named in its
// filename. A missing config yields ErrNoTaskConfig and nothing is written.
func (c *Converter) ConvertFile(ctx context.Context, path string) (Result, error) {
	task, ok := TaskOf(path)
	if !ok {
		metrics.RecordEventLog("skipped")
		return Result{Source: path}, fmt.Errorf("%w: %s has no task entity", ErrNoTaskConfig, filepath.Base(path))
	}
	cfgPath, err := FindTaskConfig(c.configDir, task)
	if err != nil {
		if errors.Is(err, ErrNoTaskConfig) {
			metrics.RecordEventLog("skipped")
		}
		return Result{Source: path}, err
	}
	cfg, err := LoadTaskConfig(cfgPath)
	if err != nil {
		metrics.RecordEventLog("failed")
		return Result{Source: path}, err
	}
	return c.Convert(ctx, path, cfg)
}

// Convert parses path with cfg and writes <stem>.tsv beside it.
func (c *Converter) Convert(ctx context.Context, path string, cfg TaskConfig) (Result, error) {
	res := Result{Source: path, Output: OutputPath(path)}

	p, err := NewParser(cfg)
	if err != nil {
		metrics.RecordEventLog("failed")
		return res, err
	}

	in, err := os.Open(path)
	if err != nil {
		metrics.RecordEventLog("failed")
		return res, fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	tmp := res.Output + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		metrics.RecordEventLog("failed")
		return res, fmt.Errorf("create %s: %w", tmp, err)
	}
	runErr := p.Run(in, out)
	closeErr := out.Close()
	if runErr == nil {
		runErr = closeErr
	}
	if runErr == nil {
		runErr = os.Rename(tmp, res.Output)
	}
	if runErr != nil {
		_ = os.Remove(tmp)
		metrics.RecordEventLog("failed")
		c.logger.Warn(ctx, "event log conversion failed",
			logger.String("log", path),
			logger.String("state", p.State().String()),
			logger.Error(runErr),
		)
		return res, fmt.Errorf("%s: %w", filepath.Base(path), runErr)
	}

	res.Events = len(p.Events())
	res.Warnings = p.Warnings()
	for _, w := range res.Warnings {
		metrics.RecordWarning("events")
		c.logger.Warn(ctx, w, logger.String("log", path))
	}
	metrics.RecordEventLog("converted")
	metrics.RecordEventRows(res.Events)
	c.logger.Info(ctx, "event log converted",
		logger.String("log", path),
		logger.String("tsv", res.Output),
		logger.Int("events", res.Events),
	)

	if !c.keepSource {
		_ = in.Close()
		if err := os.Remove(path); err != nil {
			return res, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return res, nil
}

// TaskOf extracts the task entity from a log filename.
func TaskOf(path string) (string, bool) {
	stem, _ := entity.SplitExt(filepath.Base(path))
	return entity.Lookup(entity.FromFilename(stem), "task")
}

// OutputPath is the TSV written for a log: its last extension replaced.
func OutputPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".tsv"
}
