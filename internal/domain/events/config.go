package events

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/bidsify/internal/domain/model"
)

// DefaultPulseCode is the scanner trigger code used when a task config
// does not name one.
const DefaultPulseCode = 255

// TaskConfigExtensions are tried, in order, next to the task name.
var TaskConfigExtensions = []string{".json", ".yml", ".yaml"}

// TaskConfig describes how one task's log is partitioned into conditions.
type TaskConfig struct {
	Names     []string `koanf:"con_names"`
	Codes     []any    `koanf:"con_codes"`
	Durations any      `koanf:"con_durations"`
	PulseCode any      `koanf:"pulsecode"`
	EventType string   `koanf:"event_type"`
}

// Condition is a validated condition of a task config.
type Condition struct {
	Name     string
	Spec     CodeSpec
	Duration *float64 // nil: take durations from the log
}

// LoadTaskConfig reads a task config file; the parser follows the extension.
func LoadTaskConfig(path string) (TaskConfig, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		parser = json.Parser()
	case ".yml", ".yaml":
		parser = yaml.Parser()
	default:
		return TaskConfig{}, fmt.Errorf("task config %s: unsupported extension: %w", path, model.ErrConfig)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return TaskConfig{}, fmt.Errorf("load task config %s: %w: %w", path, err, model.ErrConfig)
	}
	var cfg TaskConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return TaskConfig{}, fmt.Errorf("decode task config %s: %w: %w", path, err, model.ErrConfig)
	}
	return cfg, nil
}

// FindTaskConfig returns the single config file for task inside dir.
func FindTaskConfig(dir, task string) (string, error) {
	var found []string
	for _, ext := range TaskConfigExtensions {
		p := filepath.Join(dir, task+ext)
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: task %q in %s", ErrNoTaskConfig, task, dir)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: task %q has several configs %v", ErrNoTaskConfig, task, found)
	}
}

// Conditions validates the config and expands durations per condition.
func (c TaskConfig) Conditions() ([]Condition, error) {
	if len(c.Names) == 0 {
		return nil, fmt.Errorf("con_names is empty: %w", model.ErrConfig)
	}
	if len(c.Names) != len(c.Codes) {
		return nil, fmt.Errorf("%d con_names but %d con_codes: %w", len(c.Names), len(c.Codes), model.ErrConfig)
	}
	durations, err := c.durations()
	if err != nil {
		return nil, err
	}

	conds := make([]Condition, len(c.Names))
	for i, name := range c.Names {
		spec, err := ParseCodeSpec(c.Codes[i])
		if err != nil {
			var mce *MalformedCodeSpecError
			if errors.As(err, &mce) {
				mce.Condition = name
			}
			return nil, err
		}
		conds[i] = Condition{Name: name, Spec: spec}
		if durations != nil {
			d := durations[i]
			conds[i].Duration = &d
		}
	}
	return conds, nil
}

// durations returns one fixed duration per condition, or nil when the
// log's Duration column is used.
func (c TaskConfig) durations() ([]float64, error) {
	if c.Durations == nil {
		return nil, nil
	}
	if s, ok := c.Durations.(string); ok && s == "" {
		return nil, nil
	}
	if d, ok := asFloat(c.Durations); ok {
		if d < 0 {
			return nil, fmt.Errorf("con_durations %v: %w", d, model.ErrConfig)
		}
		return repeat(d, len(c.Names)), nil
	}
	list, ok := asList(c.Durations)
	if !ok {
		return nil, fmt.Errorf("con_durations %v: %w", c.Durations, model.ErrConfig)
	}
	values := make([]float64, len(list))
	for i, x := range list {
		d, ok := asFloat(x)
		if !ok || d < 0 {
			return nil, fmt.Errorf("con_durations[%d] %v: %w", i, x, model.ErrConfig)
		}
		values[i] = d
	}
	switch len(values) {
	case 1:
		return repeat(values[0], len(c.Names)), nil
	case len(c.Names):
		return values, nil
	default:
		return nil, fmt.Errorf("%d con_durations for %d conditions: %w", len(values), len(c.Names), model.ErrConfig)
	}
}

// Pulse returns the configured pulse code.
func (c TaskConfig) Pulse() (Code, error) {
	if c.PulseCode == nil {
		return Code{Text: fmt.Sprint(DefaultPulseCode), Num: DefaultPulseCode, Numeric: true}, nil
	}
	if n, ok := asInt(c.PulseCode); ok {
		return Code{Text: fmt.Sprint(n), Num: n, Numeric: true}, nil
	}
	if s, ok := c.PulseCode.(string); ok && s != "" {
		return ParseCode(s), nil
	}
	return Code{}, fmt.Errorf("pulsecode %v: %w", c.PulseCode, model.ErrConfig)
}

func asFloat(v any) (float64, bool) {
	if n, ok := asInt(v); ok {
		return float64(n), true
	}
	if f, ok := v.(float64); ok {
		return f, true
	}
	return 0, false
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
