package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/okian/bidsify/internal/config"
	"github.com/okian/bidsify/internal/domain/entity"
	"github.com/okian/bidsify/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

const sampleYAML = `
options:
  subject_stem: pp
  n_cores: 2
  debug: true
mappings:
  bold: _bold
  T1w: T1
  events: _events
  physio: null
  epi: ""
metadata:
  MagneticFieldStrength: 3
  Instructions: {text: "keep still"}
  func:
    SliceEncodingDirection: k
  bold:
    PhaseEncodingDirection: j
func:
  metadata:
    RepetitionTime: 2.0
  wm:
    id: workingmemory
    task: wm
    run: 1
    metadata:
      TaskDescription: n-back
  rest:
    id: rest
    task: rest
anat:
  t1:
    id: 3DT1
    acq: mprage
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Options.SubjectStem, convey.ShouldEqual, "sub")
			convey.So(cfg.Options.NCores, convey.ShouldEqual, -1)
			convey.So(cfg.Options.Deface, convey.ShouldBeTrue)
			convey.So(cfg.Options.MRIExt, convey.ShouldEqual, "PAR")
			convey.So(cfg.Options.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.Mappings, convey.ShouldBeEmpty)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a YAML config file", t, func() {
		path := writeConfig(t, "config.yml", sampleYAML)
		rawDir := filepath.Join(t.TempDir(), "raw")

		convey.Convey("When loading it", func() {
			cfg, err := config.Load(ctx, path, rawDir)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then options are merged over defaults", func() {
				convey.So(cfg.Options.SubjectStem, convey.ShouldEqual, "pp")
				convey.So(cfg.Options.NCores, convey.ShouldEqual, 2)
				convey.So(cfg.Options.Debug, convey.ShouldBeTrue)
				convey.So(cfg.Options.Deface, convey.ShouldBeTrue)
				convey.So(cfg.Options.OutDir, convey.ShouldEqual, filepath.Join(filepath.Dir(rawDir), "bids"))
				convey.So(cfg.Options.EventConfigDir, convey.ShouldEqual, rawDir)
				convey.So(cfg.Options.ReportFile, convey.ShouldEqual, filepath.Join(filepath.Dir(rawDir), "bidsify_report.yaml"))
			})

			convey.Convey("Then empty mappings are skipped", func() {
				convey.So(cfg.Mappings, convey.ShouldResemble, map[entity.ModalityType]string{
					entity.Bold: "_bold", entity.T1w: "T1", entity.Events: "_events",
				})
			})

			convey.Convey("Then metadata is split into layers", func() {
				convey.So(cfg.Metadata.Global["MagneticFieldStrength"], convey.ShouldEqual, 3)
				convey.So(cfg.Metadata.Global, convey.ShouldContainKey, "Instructions")
				convey.So(cfg.Metadata.ByDataType["func"], convey.ShouldResemble, map[string]any{
					"SliceEncodingDirection": "k", "RepetitionTime": 2.0,
				})
				convey.So(cfg.Metadata.ByModality[entity.Bold]["PhaseEncodingDirection"], convey.ShouldEqual, "j")
			})

			convey.Convey("Then elements are sorted with stringified entities", func() {
				convey.So(cfg.DataTypes, convey.ShouldHaveLength, 2)
				convey.So(cfg.DataTypes[0].Name, convey.ShouldEqual, "func")
				convey.So(cfg.DataTypes[1].Name, convey.ShouldEqual, "anat")

				fn := cfg.DataTypes[0]
				convey.So(fn.Elements[0].Name, convey.ShouldEqual, "rest")
				wm := fn.Elements[1]
				convey.So(wm.ID, convey.ShouldEqual, "workingmemory")
				convey.So(wm.Entities, convey.ShouldResemble, map[string]string{"task": "wm", "run": "1"})
				convey.So(wm.Metadata["TaskDescription"], convey.ShouldEqual, "n-back")
			})
		})

		convey.Convey("When environment variables are set", func() {
			_ = os.Setenv("BIDSIFY_OPTIONS__N_CORES", "4")
			_ = os.Setenv("BIDSIFY_OPTIONS__OVERWRITE", "true")
			defer func() {
				_ = os.Unsetenv("BIDSIFY_OPTIONS__N_CORES")
				_ = os.Unsetenv("BIDSIFY_OPTIONS__OVERWRITE")
			}()

			cfg, err := config.Load(ctx, path, rawDir)

			convey.Convey("Then they override the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Options.NCores, convey.ShouldEqual, 4)
				convey.So(cfg.Options.Overwrite, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When options are passed to Load", func() {
			out := filepath.Join(t.TempDir(), "derived")
			cfg, err := config.Load(ctx, path, rawDir, config.WithOutDir(out), config.WithLogLevel("DEBUG"))

			convey.Convey("Then they win over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Options.OutDir, convey.ShouldEqual, out)
				convey.So(cfg.Options.LogLevel, convey.ShouldEqual, "debug")
			})
		})
	})

	convey.Convey("Given a JSON config file without n_cores", t, func() {
		path := writeConfig(t, "config.json", `{
			"mappings": {"bold": "_bold", "dwi": "DTI"},
			"dwi": {"dti": {"id": "DTI", "acq": "Dirs32"}}
		}`)

		convey.Convey("Then it loads with all CPUs", func() {
			cfg, err := config.Load(ctx, path, t.TempDir())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Options.NCores, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DataTypes[0].Elements[0].Entities["acq"], convey.ShouldEqual, "Dirs32")
		})
	})

	convey.Convey("Given invalid configs", t, func() {
		cases := map[string]string{
			"missing id":       "mappings: {bold: _bold}\nfunc:\n  wm:\n    task: wm\n",
			"unknown mapping":  "mappings: {bolt: _bold}\n",
			"no mappings":      "options: {debug: true}\n",
			"bad log level":    "options: {log_level: loud}\nmappings: {bold: _bold}\n",
			"non-map element":  "mappings: {bold: _bold}\nfunc:\n  wm: yes\n",
			"nested entity":    "mappings: {bold: _bold}\nfunc:\n  wm: {id: wm, task: {a: b}}\n",
			"mapping not text": "mappings: {bold: [a, b]}\n",
		}
		for _, content := range cases {
			path := writeConfig(t, "config.yaml", content)
			_, err := config.Load(ctx, path, t.TempDir())

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(errors.Is(err, model.ErrConfig), convey.ShouldBeTrue)
		}
	})

	convey.Convey("Given a config with an unsupported extension", t, func() {
		_, err := config.Load(ctx, writeConfig(t, "config.toml", ""), t.TempDir())
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given a missing config file", t, func() {
		_, err := config.Load(ctx, filepath.Join(t.TempDir(), "absent.yml"), t.TempDir())
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
	})
}
