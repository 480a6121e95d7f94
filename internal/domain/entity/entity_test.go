package entity_test

import (
	"testing"

	"github.com/okian/bidsify/internal/domain/entity"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSchema(t *testing.T) {
	Convey("Given the modality schema table", t, func() {
		Convey("When parsing known and unknown names", func() {
			bold, ok := entity.Parse("bold")
			_, bad := entity.Parse("BOLD")

			Convey("Then only enumerated names resolve", func() {
				So(ok, ShouldBeTrue)
				So(bold, ShouldEqual, entity.Bold)
				So(bad, ShouldBeFalse)
			})
		})

		Convey("When asking for entity order", func() {
			Convey("Then each type carries its own ordering", func() {
				So(entity.Bold.Entities(), ShouldResemble, []string{"sub", "ses", "task", "acq", "rec", "run", "echo"})
				So(entity.EPI.Index("dir"), ShouldBeGreaterThan, entity.EPI.Index("run"))
				So(entity.T1w.Allows("task"), ShouldBeFalse)
				So(entity.Physio.Allows("recording"), ShouldBeTrue)
				So(entity.Magnitude1.DataType(), ShouldEqual, entity.Fmap)
			})
		})

		Convey("When mutating the returned slices", func() {
			all := entity.All()
			all[0] = "x"
			ents := entity.T1w.Entities()
			ents[0] = "x"

			Convey("Then the table is unchanged", func() {
				So(entity.All()[0], ShouldEqual, entity.T1w)
				So(entity.T1w.Entities()[0], ShouldEqual, "sub")
			})
		})
	})
}

func TestFromFilename(t *testing.T) {
	Convey("Given raw basenames", t, func() {
		Convey("When tokens carry key-value pairs", func() {
			pairs := entity.FromFilename("pp01_task-wm_acq-mb_run-2.PAR")

			Convey("Then pairs are returned in filename order without extensions", func() {
				So(pairs, ShouldResemble, []entity.Pair{
					{Key: "task", Value: "wm"},
					{Key: "acq", Value: "mb"},
					{Key: "run", Value: "2"},
				})
			})
		})

		Convey("When tokens have zero or several dashes", func() {
			pairs := entity.FromFilename("a-b-c_plain_-x_y-.nii.gz")

			Convey("Then they are ignored", func() {
				So(pairs, ShouldBeEmpty)
			})
		})

		Convey("When splitting extensions", func() {
			stem, exts := entity.SplitExt("sub-01_T1w.nii.gz")

			Convey("Then the chain is kept in order", func() {
				So(stem, ShouldEqual, "sub-01_T1w")
				So(exts, ShouldResemble, []string{"nii", "gz"})
			})
		})
	})
}

func TestResolver(t *testing.T) {
	r := entity.NewResolver(nil)
	structural := map[string]string{"sub": "01"}

	Convey("Given a bold file with declared and embedded entities", t, func() {
		res := r.Resolve(entity.Input{
			Type:       entity.Bold,
			Structural: structural,
			Declared:   map[string]string{"task": "wm", "acq": "seq"},
			Source:     "/raw/sub01/pp01_acq-mb_run-3_wm.PAR",
		})

		Convey("Then declared values win and missing keys come from the filename", func() {
			So(res.Entities, ShouldResemble, map[string]string{"sub": "01", "task": "wm", "acq": "seq", "run": "3"})
			So(res.Dropped, ShouldBeEmpty)
		})
	})

	Convey("Given declared keys outside the schema", t, func() {
		res := r.Resolve(entity.Input{
			Type:       entity.T1w,
			Structural: map[string]string{"sub": "01", "ses": "2"},
			Declared:   map[string]string{"task": "rest", "acq": "mprage"},
			Source:     "t1_task-rest.PAR",
		})

		Convey("Then they are dropped and reported", func() {
			So(res.Entities, ShouldResemble, map[string]string{"sub": "01", "ses": "2", "acq": "mprage"})
			So(res.Dropped, ShouldResemble, []string{"task"})
		})
	})

	Convey("Given a topup declared with a task", t, func() {
		res := r.Resolve(entity.Input{
			Type:       entity.EPI,
			Structural: structural,
			Declared:   map[string]string{"task": "wm"},
			Source:     "topup_task-rest.PAR",
		})

		Convey("Then the task becomes the direction", func() {
			So(res.Entities, ShouldResemble, map[string]string{"sub": "01", "dir": "wm"})
			So(res.Dropped, ShouldBeEmpty)
		})
	})

	Convey("Given physiology recordings", t, func() {
		eye := r.Resolve(entity.Input{Type: entity.Physio, Structural: structural, Declared: map[string]string{"task": "wm"}, Source: "wm_eye.edf"})
		resp := r.Resolve(entity.Input{Type: entity.Physio, Structural: structural, Declared: map[string]string{"task": "wm"}, Source: "SCANPHYSLOG_wm.log"})
		set := r.Resolve(entity.Input{Type: entity.Physio, Structural: structural, Declared: map[string]string{"recording": "pulse"}, Source: "x.log"})

		Convey("Then the recording label depends on the source format unless declared", func() {
			So(eye.Entities["recording"], ShouldEqual, "eyetracker")
			So(resp.Entities["recording"], ShouldEqual, "respcardiac")
			So(set.Entities["recording"], ShouldEqual, "pulse")
		})
	})

	Convey("Given a filename with the acq typo", t, func() {
		res := r.Resolve(entity.Input{Type: entity.DWI, Structural: structural, Source: "dwi-acq-Dirs32.PAR"})

		Convey("Then the acquisition is recovered", func() {
			So(res.Entities["acq"], ShouldEqual, "Dirs32")
		})
	})

	Convey("Given an entity value that starts with acq", t, func() {
		res := r.Resolve(entity.Input{Type: entity.Bold, Structural: structural, Source: "/raw/sub-01_task-acquisition_acq-mb_bold.PAR"})

		Convey("Then the value survives the typo correction", func() {
			So(res.Entities, ShouldResemble, map[string]string{"sub": "01", "task": "acquisition", "acq": "mb"})
		})
	})

	Convey("Given a custom registry", t, func() {
		q := entity.NewQuirks()
		q.RegisterKey("rest-run", func(_ entity.ModalityType, key string) string {
			if key == "repetition" {
				return "run"
			}
			return key
		})
		res := entity.NewResolver(q).Resolve(entity.Input{Type: entity.T1w, Structural: structural, Source: "t1_repetition-4.PAR"})

		Convey("Then only its corrections apply", func() {
			So(q.Names(), ShouldResemble, []string{"rest-run"})
			So(res.Entities, ShouldResemble, map[string]string{"sub": "01", "run": "4"})
		})
	})
}
