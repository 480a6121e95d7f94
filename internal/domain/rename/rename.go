// Package rename turns resolved entity sets into canonical BIDS names and
// places files at their target without ever replacing existing outputs.
package rename

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/okian/bidsify/internal/domain/entity"
	"github.com/okian/bidsify/internal/domain/model"
	"github.com/okian/bidsify/pkg/logger"
	"github.com/okian/bidsify/pkg/metrics"
)

// DefaultExtensions are the extension fragments kept in output names.
// Anything else after the first period of a raw name is dropped.
var DefaultExtensions = []string{
	"par", "rec", "nii", "gz", "dcm", "dicom", "dicomdir", "pickle",
	"json", "edf", "log", "bz2", "tar", "phy", "cpickle", "pkl", "jl",
	"tsv", "csv", "txt", "bval", "bvec",
}

// Record is one classified file on its way to the output tree.
type Record struct {
	Source   string
	Type     entity.ModalityType
	Entities map[string]string
	Element  string
	DataType string
	Target   string
}

// Outcome tells what Apply did with a record.
type Outcome int

const (
	Renamed Outcome = iota
	Skipped
)

func (o Outcome) String() string {
	if o == Skipped {
		return "skipped"
	}
	return "renamed"
}

// Renamer builds names and performs the copy/move.
type Renamer struct {
	mode    Mode
	allowed map[string]struct{}
	debug   bool
	logger  logger.Logger
}

// New creates a Renamer with configuration options.
func New(opts ...Option) *Renamer {
	r := &Renamer{mode: Move}
	WithAllowedExtensions(DefaultExtensions)(r)
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("rename")
	}
	return r
}

// Name returns the canonical basename for t with the given entities and
// raw extension fragments.
func (r *Renamer) Name(t entity.ModalityType, ents map[string]string, exts []string) (string, error) {
	keys := make([]string, 0, len(ents))
	for k := range ents {
		if !t.Allows(k) {
			return "", fmt.Errorf("%w: %q for %s: %w", ErrUnknownEntity, k, t, model.ErrConfig)
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int { return t.Index(a) - t.Index(b) })

	segs := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		segs = append(segs, k+"-"+ents[k])
	}
	segs = append(segs, t.String())
	name := strings.Join(segs, "_")

	var kept []string
	for _, e := range exts {
		if _, ok := r.allowed[strings.ToLower(e)]; ok {
			kept = append(kept, e)
		}
	}
	if len(kept) > 0 {
		name += "." + strings.Join(kept, ".")
	}
	return name, nil
}

// Plan computes the target of rec inside destDir. It performs no I/O and
// rejects bold files that cannot carry a task name.
func (r *Renamer) Plan(rec Record, destDir string) (Record, error) {
	if rec.Type == entity.Bold {
		if _, ok := rec.Entities["task"]; !ok {
			return rec, &MissingTaskError{Source: rec.Source, Element: rec.Element, DataType: rec.DataType}
		}
	}
	_, exts := entity.SplitExt(filepath.Base(rec.Source))
	name, err := r.Name(rec.Type, rec.Entities, exts)
	if err != nil {
		return rec, fmt.Errorf("element %q (%s): %w", rec.Element, rec.DataType, err)
	}
	rec.Target = filepath.Join(destDir, name)
	return rec, nil
}

// Apply places rec.Source at rec.Target unless the target already exists.
func (r *Renamer) Apply(ctx context.Context, rec Record) (Outcome, error) {
	if rec.Target == "" {
		return Skipped, fmt.Errorf("record for %q has no target", rec.Source)
	}
	if _, err := os.Lstat(rec.Target); err == nil {
		metrics.RecordFileSkipped()
		r.logger.Debug(ctx, "target exists, leaving it untouched",
			logger.String("source", rec.Source),
			logger.String("target", rec.Target),
		)
		return Skipped, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return Skipped, fmt.Errorf("stat %s: %w", rec.Target, err)
	}

	if r.debug {
		r.logger.Info(ctx, "renaming",
			logger.String("source", rec.Source),
			logger.String("target", rec.Target),
		)
	}
	if err := os.MkdirAll(filepath.Dir(rec.Target), 0o755); err != nil {
		return Skipped, fmt.Errorf("create %s: %w", filepath.Dir(rec.Target), err)
	}

	var err error
	if r.mode == Copy {
		err = CopyFile(rec.Source, rec.Target)
	} else {
		err = MoveFile(rec.Source, rec.Target)
	}
	if err != nil {
		metrics.RecordErrorByComponent("rename", "io")
		return Skipped, err
	}
	metrics.RecordFileRenamed(rec.Type.String())
	return Renamed, nil
}

// MoveFile renames src to dst, copying across devices.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}

// CopyFile copies src to dst keeping mode and mtime. dst must not exist.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	// O_EXCL: a target created concurrently is never replaced.
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
