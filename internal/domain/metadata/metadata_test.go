package metadata_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/bidsify/internal/domain/entity"
	"github.com/okian/bidsify/internal/domain/metadata"
	"github.com/okian/bidsify/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestCascade(t *testing.T) {
	ctx := context.Background()

	Convey("Given a converted session", t, func() {
		unit := filepath.Join(t.TempDir(), "bids", "sub-01", "ses-1")
		funcDir := filepath.Join(unit, "func")
		fmapDir := filepath.Join(unit, "fmap")
		bold := "sub-01_ses-1_task-wm_acq-seq_bold"

		touch(t, filepath.Join(funcDir, bold+".nii.gz"), "img")
		touch(t, filepath.Join(funcDir, bold+".json"), `{"RepetitionTime": 2.0, "Manufacturer": "Philips", "Field": "scanner"}`)
		touch(t, filepath.Join(funcDir, "sub-01_ses-1_task-wm_acq-seq_events.tsv"), "onset\n")
		touch(t, filepath.Join(fmapDir, "sub-01_ses-1_phasediff.nii.gz"), "img")
		touch(t, filepath.Join(fmapDir, "sub-01_ses-1_acq-seq_dir-wm_epi.nii.gz"), "img")
		touch(t, filepath.Join(fmapDir, "sub-01_ses-1_acq-Dirs32_dir-AP_epi.nii.gz"), "img")
		touch(t, filepath.Join(fmapDir, "sub-01_ses-1_acq-none_dir-PA_epi.nii.gz"), "img")
		touch(t, filepath.Join(unit, "dwi", "sub-01_ses-1_acq-Dirs32_dwi.nii.gz"), "img")
		touch(t, filepath.Join(unit, "dwi", "sub-01_ses-1_acq-Dirs32_dwi.bval"), "0 1000")
		touch(t, filepath.Join(unit, "anat", "sub-01_ses-1_T1w.nii.gz"), "img")

		layers := metadata.Layers{
			Global:     map[string]any{"Field": "global", "MagneticFieldStrength": 3},
			ByDataType: map[string]map[string]any{"func": {"Field": "dtype"}},
			ByModality: map[entity.ModalityType]map[string]any{entity.Bold: {"Field": "mtype", "MultibandAccelerationFactor": 2}},
			ByStem:     map[string]map[string]any{filepath.Join(funcDir, bold): {"Field": "file"}},
		}
		probe := func(path string) (metadata.ImageInfo, error) {
			return metadata.ImageInfo{Slices: 36}, nil
		}
		c := metadata.New(layers, metadata.WithHeaderFunc(probe), metadata.WithVersion("9.9.9"))

		Convey("When cascading", func() {
			res, err := c.Cascade(ctx, metadata.Scope{Dir: unit, Session: "ses-1"})
			So(err, ShouldBeNil)

			Convey("The per-file level wins and unrelated keys survive", func() {
				md := readJSON(t, filepath.Join(funcDir, bold+".json"))
				So(md["Field"], ShouldEqual, "file")
				So(md["Manufacturer"], ShouldEqual, "Philips")
				So(md["MagneticFieldStrength"], ShouldEqual, 3.0)
				So(md["BidsifyVersion"], ShouldEqual, "9.9.9")
				So(md["TaskName"], ShouldEqual, "wm")
			})

			Convey("Slice timing is tiled across multiband bands", func() {
				md := readJSON(t, filepath.Join(funcDir, bold+".json"))
				timing, ok := md["SliceTiming"].([]any)
				So(ok, ShouldBeTrue)
				So(timing, ShouldHaveLength, 36)
				So(timing[0], ShouldEqual, 0.0)
				So(timing[9], ShouldEqual, 1.0)
				So(timing[18], ShouldEqual, 0.0)
			})

			Convey("The phasediff points at every bold image of the session", func() {
				md := readJSON(t, filepath.Join(fmapDir, "sub-01_ses-1_phasediff.json"))
				So(md["IntendedFor"], ShouldResemble, []any{"ses-1/func/" + bold + ".nii.gz"})
				So(md["Field"], ShouldEqual, "global")
			})

			Convey("Topups resolve to bold, dwi or the placeholder", func() {
				md := readJSON(t, filepath.Join(fmapDir, "sub-01_ses-1_acq-seq_dir-wm_epi.json"))
				So(md["IntendedFor"], ShouldEqual, "ses-1/func/"+bold+".nii.gz")

				md = readJSON(t, filepath.Join(fmapDir, "sub-01_ses-1_acq-Dirs32_dir-AP_epi.json"))
				So(md["IntendedFor"], ShouldEqual, "ses-1/dwi/sub-01_ses-1_acq-Dirs32_dwi.nii.gz")

				md = readJSON(t, filepath.Join(fmapDir, "sub-01_ses-1_acq-none_dir-PA_epi.json"))
				So(md["IntendedFor"], ShouldEqual, metadata.Placeholder)
				So(res.Warnings, ShouldHaveLength, 1)
			})

			Convey("Every non-event file gets a sidecar", func() {
				So(res.Written, ShouldHaveLength, 7)
				_, err := os.Stat(filepath.Join(funcDir, "sub-01_ses-1_task-wm_acq-seq_events.json"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})

			Convey("Sidecars are indented with four spaces and stable on rerun", func() {
				path := filepath.Join(unit, "anat", "sub-01_ses-1_T1w.json")
				first, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(strings.Contains(string(first), "\n    \"BidsifyVersion\""), ShouldBeTrue)

				_, err = c.Cascade(ctx, metadata.Scope{Dir: unit, Session: "ses-1"})
				So(err, ShouldBeNil)
				second, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(second), ShouldEqual, string(first))
			})
		})
	})

	Convey("Given scans kept as PAR/REC pairs", t, func() {
		unit := filepath.Join(t.TempDir(), "bids", "sub-01")
		funcDir := filepath.Join(unit, "func")
		fmapDir := filepath.Join(unit, "fmap")
		for _, ext := range []string{"PAR", "REC"} {
			touch(t, filepath.Join(funcDir, "sub-01_task-AP_bold."+ext), "img")
			touch(t, filepath.Join(funcDir, "sub-01_task-rest_bold."+ext), "img")
			touch(t, filepath.Join(fmapDir, "sub-01_phasediff."+ext), "img")
		}
		touch(t, filepath.Join(funcDir, "sub-01_task-rest_bold.nii.gz"), "img")
		touch(t, filepath.Join(fmapDir, "sub-01_dir-AP_epi.PAR"), "img")

		Convey("When cascading", func() {
			res, err := metadata.New(metadata.Layers{}).Cascade(ctx, metadata.Scope{Dir: unit})
			So(err, ShouldBeNil)

			Convey("Each acquisition is referenced once, by its preferred image", func() {
				md := readJSON(t, filepath.Join(fmapDir, "sub-01_phasediff.json"))
				So(md["IntendedFor"], ShouldResemble, []any{"func/sub-01_task-AP_bold.PAR", "func/sub-01_task-rest_bold.nii.gz"})
			})

			Convey("The topup finds its unique bold target", func() {
				md := readJSON(t, filepath.Join(fmapDir, "sub-01_dir-AP_epi.json"))
				So(md["IntendedFor"], ShouldEqual, "func/sub-01_task-AP_bold.PAR")
				So(res.Warnings, ShouldBeEmpty)
			})
		})
	})
}

func TestSliceTiming(t *testing.T) {
	Convey("Given slice timing inputs", t, func() {
		Convey("Single band times are i*TR/n", func() {
			timing, ok := metadata.SliceTiming(2, 4, 0)
			So(ok, ShouldBeTrue)
			So(timing, ShouldResemble, []float64{0, 0.5, 1, 1.5})
		})

		Convey("Multiband times repeat per band", func() {
			timing, ok := metadata.SliceTiming(2, 4, 2)
			So(ok, ShouldBeTrue)
			So(timing, ShouldResemble, []float64{0, 1, 0, 1})
		})

		Convey("Missing inputs yield nothing", func() {
			_, ok := metadata.SliceTiming(0, 4, 1)
			So(ok, ShouldBeFalse)
			_, ok = metadata.SliceTiming(2, 0, 1)
			So(ok, ShouldBeFalse)
			_, ok = metadata.SliceTiming(2, 6, 4)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestMergeSidecar(t *testing.T) {
	Convey("Given an existing sidecar", t, func() {
		path := filepath.Join(t.TempDir(), "x.json")
		touch(t, path, `{"A": 1, "B": "keep"}`)

		Convey("Merging replaces only the given keys", func() {
			So(metadata.MergeSidecar(path, map[string]any{"A": 2, "C": true}), ShouldBeNil)
			So(readJSON(t, path), ShouldResemble, map[string]any{"A": 2.0, "B": "keep", "C": true})
		})

		Convey("A corrupt sidecar is reported", func() {
			touch(t, path, "{")
			err := metadata.MergeSidecar(path, map[string]any{"A": 2})
			So(errors.Is(err, metadata.ErrReadSidecar), ShouldBeTrue)
		})
	})
}
