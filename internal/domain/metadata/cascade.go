// Package metadata cascades configured metadata into JSON sidecars and
// computes the fields that depend on neighbouring files.
package metadata

import (
	"context"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/okian/bidsify/internal/domain/entity"
	"github.com/okian/bidsify/pkg/logger"
	"github.com/okian/bidsify/pkg/metrics"
)

// Version is written as BidsifyVersion; set at build time with -ldflags.
var Version = "0.5.0"

// Placeholder is written to IntendedFor when no target can be found.
const Placeholder = "Could not find corresponding file; add this yourself!"

// Layers are the configured metadata tiers, lowest precedence first.
type Layers struct {
	Global     map[string]any
	ByDataType map[string]map[string]any
	ByModality map[entity.ModalityType]map[string]any
	// ByStem holds per-file metadata keyed by the absolute output path
	// without extensions, see StemPath.
	ByStem map[string]map[string]any
}

// Scope locates one unit's output directory.
type Scope struct {
	Dir     string // e.g. <out>/sub-01/ses-1
	Session string // "ses-1", or "" without sessions
}

// Result lists what a cascade did.
type Result struct {
	Written  []string
	Warnings []string
}

// Cascader writes sidecars for every renamed file of a unit.
type Cascader struct {
	layers  Layers
	header  HeaderFunc
	version string
	logger  logger.Logger
}

// New creates a Cascader for the given layers.
func New(layers Layers, opts ...Option) *Cascader {
	c := &Cascader{layers: layers, version: Version}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("metadata")
	}
	return c
}

// StemPath strips every extension from path: a/b.nii.gz becomes a/b.
func StemPath(p string) string {
	stem, _ := entity.SplitExt(filepath.Base(p))
	return filepath.Join(filepath.Dir(p), stem)
}

// Cascade writes the sidecars of every data type directory in scope.
func (c *Cascader) Cascade(ctx context.Context, scope Scope) (Result, error) {
	var res Result
	for _, dtype := range entity.DataTypes {
		dir := filepath.Join(scope.Dir, dtype)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		for _, t := range entity.All() {
			if t == entity.Events {
				continue
			}
			stems, err := stemsOf(dir, t)
			if err != nil {
				return res, err
			}
			for _, stem := range stems {
				if err := c.writeOne(ctx, scope, dtype, t, stem, &res); err != nil {
					return res, err
				}
			}
		}
	}
	return res, nil
}

func (c *Cascader) writeOne(ctx context.Context, scope Scope, dtype string, t entity.ModalityType, stem string, res *Result) error {
	dir := filepath.Join(scope.Dir, dtype)
	sidecar := filepath.Join(dir, stem+".json")

	existing, err := ReadSidecar(sidecar)
	if err != nil {
		return err
	}

	fields := map[string]any{}
	merge(fields, c.layers.Global)
	fields["BidsifyVersion"] = c.version
	merge(fields, c.layers.ByDataType[dtype])
	merge(fields, c.layers.ByModality[t])
	merge(fields, c.layers.ByStem[filepath.Join(dir, stem)])

	ents := entitiesOf(stem)
	switch t {
	case entity.Phasediff:
		bold, err := imagesOf(scope, entity.Func, func(e map[string]string, mt string) bool { return mt == string(entity.Bold) })
		if err != nil {
			return err
		}
		if len(bold) == 0 {
			c.warn(ctx, res, fmt.Sprintf("%s: no bold files for IntendedFor", stem))
			bold = []string{}
		}
		fields["IntendedFor"] = bold
	case entity.EPI:
		target, err := c.topupTarget(scope, ents)
		if err != nil {
			return err
		}
		if target == "" {
			c.warn(ctx, res, fmt.Sprintf("%s: could not find the file this topup corrects", stem))
			target = Placeholder
		}
		fields["IntendedFor"] = target
	case entity.Bold:
		if task, ok := ents["task"]; ok {
			fields["TaskName"] = task
		}
		if timing, ok := c.sliceTiming(dir, stem, existing, fields); ok {
			fields["SliceTiming"] = timing
		}
	}

	if err := MergeSidecar(sidecar, fields); err != nil {
		return err
	}
	metrics.RecordSidecarWritten()
	res.Written = append(res.Written, sidecar)
	return nil
}

// topupTarget finds the unique bold file whose task equals the topup's
// dir and whose acq matches, falling back to a unique dwi with that acq.
func (c *Cascader) topupTarget(scope Scope, topup map[string]string) (string, error) {
	acq := topup["acq"]
	if dir, ok := topup["dir"]; ok {
		bold, err := imagesOf(scope, entity.Func, func(e map[string]string, mt string) bool {
			return mt == string(entity.Bold) && e["task"] == dir && e["acq"] == acq
		})
		if err != nil {
			return "", err
		}
		if len(bold) == 1 {
			return bold[0], nil
		}
	}
	dwi, err := imagesOf(scope, entity.Dwi, func(e map[string]string, mt string) bool {
		return mt == string(entity.DWI) && e["acq"] == acq
	})
	if err != nil {
		return "", err
	}
	if len(dwi) == 1 {
		return dwi[0], nil
	}
	return "", nil
}

func (c *Cascader) sliceTiming(dir, stem string, existing, fields map[string]any) ([]float64, bool) {
	tr, _ := number(lookup("RepetitionTime", fields, existing))
	mb, _ := number(lookup("MultibandAccelerationFactor", fields, existing))

	nSlices := 0
	if c.header != nil {
		files, _ := doublestar.Glob(os.DirFS(dir), stem+".*")
		slices.SortFunc(files, func(a, b string) int {
			if preferred(a, b) {
				return -1
			}
			if preferred(b, a) {
				return 1
			}
			return 0
		})
		for _, f := range files {
			if strings.HasSuffix(f, ".json") {
				continue
			}
			info, err := c.header(filepath.Join(dir, f))
			if err != nil {
				continue
			}
			if tr <= 0 {
				tr = info.RepetitionTime
			}
			nSlices = info.Slices
			break
		}
	}
	return SliceTiming(tr, nSlices, int(mb))
}

// SliceTiming returns ascending, evenly spaced slice onsets. With a
// multiband factor above one, n/mb onsets are tiled mb times.
func SliceTiming(tr float64, slices, mb int) ([]float64, bool) {
	if tr <= 0 || slices <= 0 {
		return nil, false
	}
	if mb < 1 {
		mb = 1
	}
	if slices%mb != 0 {
		return nil, false
	}
	n := slices / mb
	band := make([]float64, n)
	for i := range band {
		band[i] = round6(float64(i) * tr / float64(n))
	}
	out := make([]float64, 0, slices)
	for range mb {
		out = append(out, band...)
	}
	return out, true
}

func (c *Cascader) warn(ctx context.Context, res *Result, msg string) {
	metrics.RecordWarning("metadata")
	c.logger.Warn(ctx, msg)
	res.Warnings = append(res.Warnings, msg)
}

// stemsOf returns the sorted, distinct stems of files of type t in dir.
func stemsOf(dir string, t entity.ModalityType) ([]string, error) {
	files, err := doublestar.Glob(os.DirFS(dir), "*_"+string(t)+".*")
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	var stems []string
	for _, f := range files {
		stem, _ := entity.SplitExt(f)
		if strings.HasSuffix(stem, "_"+string(t)) && !slices.Contains(stems, stem) {
			stems = append(stems, stem)
		}
	}
	slices.Sort(stems)
	return stems, nil
}

// imagePreference ranks the extension chains of one acquisition; a stem
// present as several files is represented by the best ranked one.
var imagePreference = []string{"nii.gz", "nii", "dcm", "par"}

func imageRank(exts []string) int {
	if i := slices.Index(imagePreference, strings.ToLower(strings.Join(exts, "."))); i >= 0 {
		return i
	}
	return len(imagePreference)
}

// imagesOf lists one image per stem of a data type directory, relative to
// the subject directory, for the stems that satisfy keep.
func imagesOf(scope Scope, dtype string, keep func(ents map[string]string, suffix string) bool) ([]string, error) {
	dir := filepath.Join(scope.Dir, dtype)
	files, err := doublestar.Glob(os.DirFS(dir), "*")
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	best := map[string]string{}
	for _, f := range files {
		stem, exts := entity.SplitExt(f)
		if len(exts) == 0 || slices.Contains([]string{"json", "tsv", "bval", "bvec"}, strings.ToLower(exts[len(exts)-1])) {
			continue
		}
		idx := strings.LastIndex(stem, "_")
		if idx < 0 || !keep(entitiesOf(stem), stem[idx+1:]) {
			continue
		}
		if cur, ok := best[stem]; ok && !preferred(f, cur) {
			continue
		}
		best[stem] = f
	}
	out := make([]string, 0, len(best))
	for _, f := range best {
		out = append(out, path.Join(scope.Session, dtype, f))
	}
	slices.Sort(out)
	return out, nil
}

// preferred reports whether file a ranks before file b of the same stem.
func preferred(a, b string) bool {
	_, ea := entity.SplitExt(a)
	_, eb := entity.SplitExt(b)
	if ra, rb := imageRank(ea), imageRank(eb); ra != rb {
		return ra < rb
	}
	return a < b
}

func entitiesOf(stem string) map[string]string {
	ents := map[string]string{}
	for _, p := range entity.FromFilename(stem) {
		ents[p.Key] = p.Value
	}
	return ents
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func lookup(key string, layers ...map[string]any) any {
	for _, l := range layers {
		if v, ok := l[key]; ok {
			return v
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
