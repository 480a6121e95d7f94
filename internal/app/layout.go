package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/okian/bidsify/internal/domain/entity"
	"github.com/okian/bidsify/internal/domain/metadata"
	"github.com/okian/bidsify/internal/domain/model"
	"github.com/okian/bidsify/internal/domain/rename"
	"github.com/okian/bidsify/internal/domain/types"
	"github.com/okian/bidsify/pkg/logger"
	"github.com/okian/bidsify/pkg/metrics"
)

// BIDSVersion is written to a newly created dataset_description.json.
const BIDSVersion = "1.2.0"

// stage copies the files of the unit's source directory into its output
// directory. When the source holds only directories, their files are
// staged instead. Returns the number of staged files.
func (s *Service) stage(ctx context.Context, u model.Unit, rep *types.UnitReport, log logger.Logger) (int, error) {
	files, err := regularFiles(u.SourceDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		entries, err := os.ReadDir(u.SourceDir)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", u.SourceDir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			nested, err := regularFiles(filepath.Join(u.SourceDir, e.Name()))
			if err != nil {
				return 0, err
			}
			files = append(files, nested...)
		}
	}
	if len(files) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(u.OutDir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", u.OutDir, err)
	}
	n := 0
	for _, f := range files {
		dst := filepath.Join(u.OutDir, filepath.Base(f))
		if err := rename.CopyFile(f, dst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				s.warn(ctx, log, rep, "stage", fmt.Sprintf("%s appears twice in %s; keeping the first", filepath.Base(f), u.SourceDir))
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// moveUnallocated moves files no element claimed to
// <out parent>/unallocated/<sub>[/<ses>]. Files already there are dropped.
func (s *Service) moveUnallocated(ctx context.Context, u model.Unit, rep *types.UnitReport, log logger.Logger) error {
	files, err := regularFiles(u.OutDir)
	if err != nil || len(files) == 0 {
		return err
	}

	dir := filepath.Join(filepath.Dir(s.cfg.Options.OutDir), "unallocated", u.Subject())
	if u.SessionID != "" {
		dir = filepath.Join(dir, u.Session())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	for _, f := range files {
		dst := filepath.Join(dir, filepath.Base(f))
		if _, err := os.Lstat(dst); err == nil {
			if err := os.Remove(f); err != nil {
				return fmt.Errorf("remove %s: %w", f, err)
			}
		} else if err := rename.MoveFile(f, dst); err != nil {
			return err
		}
		rep.Unallocated = append(rep.Unallocated, dst)
	}
	metrics.RecordFilesUnallocated(len(files))
	log.Info(ctx, "unallocated files", logger.Strings("files", rep.Unallocated), logger.String("dir", dir))
	return nil
}

// dropTopupGradients removes bval/bvec files renamed as epi field maps.
func dropTopupGradients(unitDir string) error {
	dir := filepath.Join(unitDir, entity.Fmap)
	names, err := doublestar.Glob(os.DirFS(dir), "*_epi.{bval,bvec}")
	if err != nil {
		return fmt.Errorf("glob %s: %w", dir, err)
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// eventLogs lists the *_events files of dir whose last extension is log.
func eventLogs(dir string) ([]string, error) {
	files, err := regularFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		stem, exts := entity.SplitExt(filepath.Base(f))
		if !strings.HasSuffix(stem, "_"+entity.Events.String()) || len(exts) == 0 {
			continue
		}
		if strings.EqualFold(exts[len(exts)-1], "log") {
			out = append(out, f)
		}
	}
	return out, nil
}

// finalize writes the dataset-level files of the output directory.
func (s *Service) finalize(ctx context.Context) error {
	out := s.cfg.Options.OutDir
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}

	desc := filepath.Join(out, "dataset_description.json")
	if _, err := os.Stat(desc); errors.Is(err, fs.ErrNotExist) {
		if err := metadata.MergeSidecar(desc, map[string]any{
			"Name":           filepath.Base(filepath.Dir(out)),
			"BIDSVersion":    BIDSVersion,
			"BidsifyVersion": metadata.Version,
		}); err != nil {
			return err
		}
	}

	ignore := filepath.Join(s.cfg.RawDir, ".bidsignore")
	if _, err := os.Stat(ignore); err == nil {
		dst := filepath.Join(out, ".bidsignore")
		_ = os.Remove(dst)
		if err := rename.CopyFile(ignore, dst); err != nil {
			return err
		}
	}

	subjects, err := writeParticipants(out)
	if err != nil {
		return err
	}
	s.logger.Debug(ctx, "wrote participants.tsv", logger.Int("subjects", subjects))
	return nil
}

// writeParticipants lists the sub-* directories of out in participants.tsv.
func writeParticipants(out string) (int, error) {
	entries, err := os.ReadDir(out)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", out, err)
	}
	path := filepath.Join(out, "participants.tsv")
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	n := 0
	if err := w.Write([]string{"participant_id"}); err != nil {
		return 0, err
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "sub-") {
			continue
		}
		if err := w.Write([]string{e.Name()}); err != nil {
			return n, err
		}
		n++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, f.Close()
}

func sessionDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "ses-") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// regularFiles returns the regular files directly inside dir, sorted. A
// missing dir has no files.
func regularFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
