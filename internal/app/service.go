// Package service orchestrates a conversion run: it discovers subject and
// session units in the raw directory, converts them on a worker pool and
// writes the dataset-level files and the run report.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	eventqueue "github.com/okian/bidsify/internal/adapters/mq/queue"
	workerpool "github.com/okian/bidsify/internal/adapters/mq/worker"
	"github.com/okian/bidsify/internal/adapters/report"
	"github.com/okian/bidsify/internal/config"
	"github.com/okian/bidsify/internal/domain/dedupe"
	"github.com/okian/bidsify/internal/domain/entity"
	"github.com/okian/bidsify/internal/domain/events"
	"github.com/okian/bidsify/internal/domain/matcher"
	"github.com/okian/bidsify/internal/domain/metadata"
	"github.com/okian/bidsify/internal/domain/model"
	"github.com/okian/bidsify/internal/domain/rename"
	"github.com/okian/bidsify/internal/domain/types"
	"github.com/okian/bidsify/pkg/logger"
	"github.com/okian/bidsify/pkg/metrics"
)

// Service converts the raw directory of a Config into a BIDS tree.
type Service struct {
	cfg *config.Config

	// Core components
	matcher   *matcher.Matcher
	resolver  *entity.Resolver
	quirks    *entity.Quirks
	renamer   *rename.Renamer
	events    *events.Converter
	deduper   dedupe.Deduper
	collector *report.Collector
	header    metadata.HeaderFunc

	// Configuration
	workerCount int
	queueSize   int
	keepLogs    bool
	runID       string

	logger logger.Logger
}

// New validates the mappings of cfg and builds a Service.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	m, err := matcher.New(cfg.Mappings)
	if err != nil {
		return nil, err
	}

	quirks := entity.DefaultQuirks()
	s := &Service{
		cfg:         cfg,
		matcher:     m,
		resolver:    entity.NewResolver(quirks),
		quirks:      quirks,
		collector:   report.NewCollector(),
		workerCount: cfg.Options.NCores,
		queueSize:   cfg.Options.QueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger = s.logger.With(logger.String("run_id", s.runID))
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper()
	}

	s.renamer = rename.New(
		rename.WithDebug(cfg.Options.Debug),
		rename.WithLogger(s.logger.Named("rename")),
	)
	s.events = events.NewConverter(cfg.Options.EventConfigDir,
		events.WithKeepSource(s.keepLogs),
		events.WithLogger(s.logger.Named("events")),
	)
	return s, nil
}

// RunID identifies this run in logs and in the report.
func (s *Service) RunID() string { return s.runID }

// Run converts every unit and writes the dataset files and the report.
// The returned report is complete even when the error is ErrUnitsFailed.
func (s *Service) Run(ctx context.Context) (types.RunReport, error) {
	started := time.Now()
	rep := types.RunReport{
		RunID:   s.runID,
		Version: metadata.Version,
		RawDir:  s.cfg.RawDir,
		OutDir:  s.cfg.Options.OutDir,
		Deface:  s.cfg.Options.Deface,
		Started: started,
	}

	units, err := s.Discover(ctx)
	if err != nil {
		return rep, err
	}
	q := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	pool := workerpool.NewPool(s.workerCount, q, s)

	s.logger.Info(ctx, "starting conversion",
		logger.String("raw", s.cfg.RawDir),
		logger.String("out", s.cfg.Options.OutDir),
		logger.Int("units", len(units)),
		logger.Int("workers", pool.Size()),
	)
	s.logger.Debug(ctx, "filename corrections", logger.Strings("quirks", s.quirks.Names()))
	if s.cfg.Options.Deface {
		s.logger.Debug(ctx, "defacing is not performed by this tool; deface is only recorded")
	}

	pool.Start(ctx)

	var submitErr error
	for _, u := range units {
		if s.deduper.SeenAndRecord(ctx, u.Key(), u.SourceDir) {
			owner, _ := s.deduper.Owner(ctx, u.Key())
			s.logger.Warn(ctx, "unit already claimed in this run, skipping",
				logger.String("unit", u.Key()),
				logger.String("source", u.SourceDir),
				logger.String("owner", owner),
			)
			s.collector.Add(types.UnitReport{
				Subject: u.Subject(),
				Session: u.Session(),
				Source:  u.SourceDir,
				Status:  types.StatusSkipped,
				Reason:  "converted from " + owner,
			})
			metrics.RecordUnit(string(types.StatusSkipped))
			continue
		}
		if err := q.Submit(ctx, u); err != nil {
			submitErr = fmt.Errorf("submit %s: %w", u.Key(), err)
			break
		}
	}
	if submitErr != nil {
		// Queued units are abandoned; units in progress still finish.
		drain := context.WithoutCancel(ctx)
		pool.Stop(drain)
		_ = pool.Shutdown(drain)
		return rep, submitErr
	}
	if err := pool.Shutdown(ctx); err != nil {
		return rep, fmt.Errorf("wait for workers: %w", err)
	}

	if err := s.finalize(ctx); err != nil {
		return rep, err
	}

	rep.Units = s.collector.Units()
	rep.Finished = time.Now()
	if err := report.Write(s.cfg.Options.ReportFile, rep); err != nil {
		return rep, err
	}
	if path := s.cfg.Options.MetricsFile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			s.logger.Warn(ctx, "could not write metrics", logger.String("path", path), logger.Error(err))
		}
	}

	s.logger.Info(ctx, "conversion finished",
		logger.Int("converted", rep.Count(types.StatusConverted)),
		logger.Int("skipped", rep.Count(types.StatusSkipped)),
		logger.Int("failed", rep.Failed()),
		logger.Int("claimed", int(s.deduper.Size())),
		logger.String("report", s.cfg.Options.ReportFile),
	)
	if n := rep.Failed(); n > 0 {
		return rep, fmt.Errorf("%w: %d of %d", ErrUnitsFailed, n, len(rep.Units))
	}
	return rep, nil
}

// Discover lists the units of the raw directory in sorted order. Each
// session directory of a subject is a unit of its own.
func (s *Service) Discover(ctx context.Context) ([]model.Unit, error) {
	stem := s.cfg.Options.SubjectStem
	entries, err := os.ReadDir(s.cfg.RawDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.cfg.RawDir, err)
	}

	var units []model.Unit
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stem) {
			continue
		}
		subDir := filepath.Join(s.cfg.RawDir, e.Name())
		id := SubjectID(stem, e.Name())
		if id == "" {
			s.logger.Warn(ctx, "directory yields an empty subject id, ignoring", logger.String("dir", subDir))
			continue
		}
		outDir := filepath.Join(s.cfg.Options.OutDir, "sub-"+id)

		sessions, err := sessionDirs(subDir)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			units = append(units, model.Unit{SubjectID: id, SourceDir: subDir, OutDir: outDir})
			continue
		}
		for _, ses := range sessions {
			units = append(units, model.Unit{
				SubjectID: id,
				SessionID: strings.TrimPrefix(ses, "ses-"),
				SourceDir: filepath.Join(subDir, ses),
				OutDir:    filepath.Join(outDir, ses),
			})
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w in %s with subject stem %q", ErrNoSubjects, s.cfg.RawDir, stem)
	}
	return units, nil
}

// SubjectID derives the canonical subject id from a raw directory name:
// the part after the last occurrence of stem, without '-' and '_'.
func SubjectID(stem, name string) string {
	if stem != "" {
		if i := strings.LastIndex(name, stem); i >= 0 {
			name = name[i+len(stem):]
		}
	}
	return strings.NewReplacer("-", "", "_", "").Replace(name)
}

// Process converts one unit. It implements the worker pool's Processor.
func (s *Service) Process(ctx context.Context, u model.Unit) error {
	start := time.Now()
	log := s.logger.With(logger.String("unit", u.Key()))
	rep := types.UnitReport{
		Subject: u.Subject(),
		Session: u.Session(),
		Source:  u.SourceDir,
		Status:  types.StatusConverted,
	}

	err := s.convert(ctx, u, &rep, log)
	if err != nil {
		rep.Status = types.StatusFailed
		rep.Reason = err.Error()
	} else if rep.Status == types.StatusConverted {
		log.Info(ctx, "unit converted",
			logger.Int("renamed", rep.Renamed),
			logger.Int("skipped", rep.Skipped),
			logger.Int("sidecars", rep.Sidecars),
			logger.Int("unallocated", len(rep.Unallocated)),
		)
	}
	rep.Seconds = time.Since(start).Seconds()
	s.collector.Add(rep)
	metrics.RecordUnit(string(rep.Status))
	metrics.RecordUnitDuration(rep.Seconds)
	return err
}

func (s *Service) convert(ctx context.Context, u model.Unit, rep *types.UnitReport, log logger.Logger) (err error) {
	if _, err := os.Stat(u.OutDir); err == nil {
		if !s.cfg.Options.Overwrite {
			rep.Status = types.StatusSkipped
			rep.Reason = "output exists"
			log.Info(ctx, "data has been converted already, skipping", logger.String("out", u.OutDir))
			return nil
		}
		if err := os.RemoveAll(u.OutDir); err != nil {
			return fmt.Errorf("remove %s: %w", u.OutDir, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", u.OutDir, err)
	}

	// From here on the output directory belongs to this run. A partial one
	// would be skipped as converted by the next run.
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.RemoveAll(u.OutDir); rmErr != nil {
			log.Warn(ctx, "could not remove partial output", logger.String("out", u.OutDir), logger.Error(rmErr))
		}
	}()

	log.Info(ctx, "converting", logger.String("source", u.SourceDir))
	n, err := s.stage(ctx, u, rep, log)
	if err != nil {
		return err
	}
	if n == 0 {
		rep.Status = types.StatusSkipped
		rep.Reason = "no files found"
		log.Info(ctx, "no files to convert")
		return nil
	}

	byStem := make(map[string]map[string]any)
	for _, dt := range s.cfg.DataTypes {
		for _, el := range dt.Elements {
			if err := s.renameElement(ctx, u, el, byStem, rep, log); err != nil {
				return err
			}
		}
	}
	if err := dropTopupGradients(u.OutDir); err != nil {
		return err
	}
	if err := s.moveUnallocated(ctx, u, rep, log); err != nil {
		return err
	}
	if err := s.cascade(ctx, u, byStem, rep, log); err != nil {
		return err
	}
	return s.convertEvents(ctx, u, rep, log)
}

// renameElement places every staged file whose name contains the element id.
func (s *Service) renameElement(ctx context.Context, u model.Unit, el config.Element,
	byStem map[string]map[string]any, rep *types.UnitReport, log logger.Logger,
) error {
	names, err := doublestar.Glob(os.DirFS(u.OutDir), "*"+el.ID+"*")
	if err != nil {
		return fmt.Errorf("element %q (%s): id %q: %w: %w", el.Name, el.DataType, el.ID, err, model.ErrConfig)
	}
	var files []string
	for _, name := range names {
		p := filepath.Join(u.OutDir, name)
		if info, err := os.Lstat(p); err == nil && info.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		msg := fmt.Sprintf("could not find files for element %s (%s) with identifier %q", el.Name, el.DataType, el.ID)
		log.Info(ctx, msg)
		rep.Warnings = append(rep.Warnings, msg)
		return nil
	}

	destDir := filepath.Join(u.OutDir, el.DataType)
	reported := make(map[string]bool)
	for _, f := range files {
		t, ok, err := s.matcher.Classify(f)
		if err != nil {
			return fmt.Errorf("element %q (%s): %w", el.Name, el.DataType, err)
		}
		if !ok {
			continue
		}

		res := s.resolver.Resolve(entity.Input{
			Type:       t,
			Structural: u.StructuralEntities(),
			Declared:   el.Entities,
			Source:     f,
		})
		for _, key := range res.Dropped {
			if reported[key] {
				continue
			}
			reported[key] = true
			s.warn(ctx, log, rep, "entity", fmt.Sprintf(
				"key %q in element %s (%s) is not allowed for %s; choose from %s",
				key, el.Name, el.DataType, t, strings.Join(t.Entities(), ", ")))
		}

		rec, err := s.renamer.Plan(rename.Record{
			Source:   f,
			Type:     t,
			Entities: res.Entities,
			Element:  el.Name,
			DataType: el.DataType,
		}, destDir)
		if err != nil {
			return err
		}
		outcome, err := s.renamer.Apply(ctx, rec)
		if err != nil {
			return fmt.Errorf("element %q (%s): %w", el.Name, el.DataType, err)
		}
		if outcome == rename.Skipped {
			rep.Skipped++
		} else {
			rep.Renamed++
		}
		if len(el.Metadata) > 0 {
			byStem[metadata.StemPath(rec.Target)] = el.Metadata
		}
	}
	return nil
}

func (s *Service) cascade(ctx context.Context, u model.Unit, byStem map[string]map[string]any,
	rep *types.UnitReport, log logger.Logger,
) error {
	c := metadata.New(metadata.Layers{
		Global:     s.cfg.Metadata.Global,
		ByDataType: s.cfg.Metadata.ByDataType,
		ByModality: s.cfg.Metadata.ByModality,
		ByStem:     byStem,
	},
		metadata.WithHeaderFunc(s.header),
		metadata.WithLogger(log.Named("metadata")),
	)
	res, err := c.Cascade(ctx, metadata.Scope{Dir: u.OutDir, Session: u.Session()})
	if err != nil {
		return err
	}
	rep.Sidecars += len(res.Written)
	rep.Warnings = append(rep.Warnings, res.Warnings...)
	return nil
}

// convertEvents turns the behavioural logs of the func directory into
// event TSVs. A log without task config or with bad data is left alone.
func (s *Service) convertEvents(ctx context.Context, u model.Unit, rep *types.UnitReport, log logger.Logger) error {
	logs, err := eventLogs(filepath.Join(u.OutDir, entity.Func))
	if err != nil {
		return err
	}
	for _, path := range logs {
		res, err := s.events.ConvertFile(ctx, path)
		switch {
		case err == nil:
			rep.EventFiles = append(rep.EventFiles, res.Output)
			rep.Warnings = append(rep.Warnings, res.Warnings...)
		case errors.Is(err, events.ErrNoTaskConfig):
			msg := fmt.Sprintf("%s not converted: %v", filepath.Base(path), err)
			log.Info(ctx, msg)
			rep.Warnings = append(rep.Warnings, msg)
		case errors.Is(err, model.ErrData):
			s.warn(ctx, log, rep, "events", fmt.Sprintf("%s not converted: %v", filepath.Base(path), err))
		default:
			return fmt.Errorf("events %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func (s *Service) warn(ctx context.Context, log logger.Logger, rep *types.UnitReport, component, msg string) {
	log.Warn(ctx, msg)
	rep.Warnings = append(rep.Warnings, msg)
	metrics.RecordWarning(component)
}
