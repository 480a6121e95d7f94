// Package config defines the conversion configuration and its loading.
//
// A Config is validated once by Load with every default resolved; the
// rest of the program treats it as read-only.
package config

import "github.com/okian/bidsify/internal/domain/entity"

// Options are the run-wide switches under the "options" key.
type Options struct {
	// SubjectStem prefixes raw subject directories, e.g. "pp" for pp01.
	SubjectStem string `koanf:"subject_stem"`

	// Debug logs every rename.
	Debug bool `koanf:"debug"`

	// Overwrite reconverts units whose output directory already exists.
	Overwrite bool `koanf:"overwrite"`

	// NCores bounds the number of units converted concurrently; -1 uses all CPUs.
	NCores int `koanf:"n_cores"`

	// QueueSize bounds the number of pending units.
	QueueSize int `koanf:"queue_size"`

	// Deface is recorded in the report; defacing itself is not performed.
	Deface bool `koanf:"deface"`

	// MRIExt names the raw scan format, e.g. PAR or dcm.
	MRIExt string `koanf:"mri_ext"`

	OutDir         string `koanf:"out_dir"`
	EventConfigDir string `koanf:"event_config_dir"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"`

	MetricsFile string `koanf:"metrics_file"`
	ReportFile  string `koanf:"report_file"`
}

// Element is one named entry of a data type. Files whose basename
// contains ID belong to it.
type Element struct {
	Name     string
	DataType string
	ID       string
	Entities map[string]string
	Metadata map[string]any
}

// DataType groups the elements of func, anat, fmap or dwi.
type DataType struct {
	Name     string
	Elements []Element // sorted by name
}

// Metadata holds the sidecar layers shared by many files.
type Metadata struct {
	Global     map[string]any
	ByDataType map[string]map[string]any
	ByModality map[entity.ModalityType]map[string]any
}

// Config is the validated conversion configuration.
type Config struct {
	RawDir    string
	Options   Options
	Mappings  map[entity.ModalityType]string
	Metadata  Metadata
	DataTypes []DataType // in entity.DataTypes order; absent ones omitted
}

// New returns a Config holding only defaults.
func New() *Config {
	return &Config{
		Options: Options{
			SubjectStem: "sub",
			NCores:      -1,
			QueueSize:   64,
			Deface:      true,
			MRIExt:      "PAR",
			LogLevel:    "info",
		},
		Mappings: map[entity.ModalityType]string{},
		Metadata: Metadata{
			Global:     map[string]any{},
			ByDataType: map[string]map[string]any{},
			ByModality: map[entity.ModalityType]map[string]any{},
		},
	}
}
