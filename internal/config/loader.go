package config

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/bidsify/internal/domain/entity"
)

const (
	envPrefix   = "BIDSIFY_"
	metadataKey = "metadata"
	idKey       = "id"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Option adjusts a Config after the file and environment are applied and
// before defaults are resolved.
type Option func(*Config)

// WithOutDir overrides options.out_dir.
func WithOutDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.Options.OutDir = dir
		}
	}
}

// WithLogLevel overrides options.log_level.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		if level != "" {
			c.Options.LogLevel = level
		}
	}
}

// Load builds a Config by layering defaults, the config file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file at path, YAML or JSON by extension; skipped when path is empty
//  3. env (prefix BIDSIFY_, "__" separates levels: BIDSIFY_OPTIONS__N_CORES)
func Load(_ context.Context, path, rawDir string, opts ...Option) (*Config, error) {
	cfg := New()
	k := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, loadErr(path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, loadErr("environment", err)
	}

	if err := k.UnmarshalWithConf("options", &cfg.Options, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, loadErr(path, err)
	}
	if err := cfg.parseMappings(k.Get("mappings")); err != nil {
		return nil, err
	}
	if err := cfg.parseMetadata(k.Get(metadataKey)); err != nil {
		return nil, err
	}
	for _, dt := range entity.DataTypes {
		if !k.Exists(dt) {
			continue
		}
		if err := cfg.parseDataType(dt, k.Get(dt)); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.resolve(rawDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, invalid("config %s: extension must be .yml, .yaml or .json", path)
	}
}

func (c *Config) parseMappings(raw any) error {
	if raw == nil {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return invalid("mappings must be a map, got %T", raw)
	}
	for key, v := range m {
		t, ok := entity.Parse(key)
		if !ok {
			return invalid("mappings: unknown modality type %q", key)
		}
		if v == nil {
			continue
		}
		pattern, ok := v.(string)
		if !ok {
			return invalid("mappings.%s must be a string, got %T", key, v)
		}
		if pattern != "" {
			c.Mappings[t] = pattern
		}
	}
	return nil
}

// parseMetadata splits the metadata tree into its layers. Nested maps
// keyed by a data type or a modality type become layers; everything else
// is global.
func (c *Config) parseMetadata(raw any) error {
	if raw == nil {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return invalid("metadata must be a map, got %T", raw)
	}
	for key, v := range m {
		nested, isMap := v.(map[string]any)
		switch {
		case isMap && entity.IsDataType(key):
			c.Metadata.ByDataType[key] = merge(c.Metadata.ByDataType[key], nested)
		case isMap:
			if t, ok := entity.Parse(key); ok {
				c.Metadata.ByModality[t] = merge(c.Metadata.ByModality[t], nested)
				continue
			}
			c.Metadata.Global[key] = v
		default:
			c.Metadata.Global[key] = v
		}
	}
	return nil
}

func (c *Config) parseDataType(name string, raw any) error {
	m, ok := raw.(map[string]any)
	if !ok {
		return invalid("%s must be a map of elements, got %T", name, raw)
	}
	dt := DataType{Name: name}
	for elemName, v := range m {
		if elemName == metadataKey {
			md, ok := v.(map[string]any)
			if !ok {
				return invalid("%s.metadata must be a map, got %T", name, v)
			}
			c.Metadata.ByDataType[name] = merge(c.Metadata.ByDataType[name], md)
			continue
		}
		elem, err := parseElement(name, elemName, v)
		if err != nil {
			return err
		}
		dt.Elements = append(dt.Elements, elem)
	}
	sort.Slice(dt.Elements, func(i, j int) bool { return dt.Elements[i].Name < dt.Elements[j].Name })
	c.DataTypes = append(c.DataTypes, dt)
	return nil
}

func parseElement(dtype, name string, raw any) (Element, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return Element{}, invalid("element %q (%s) must be a map, got %T", name, dtype, raw)
	}
	elem := Element{Name: name, DataType: dtype, Entities: map[string]string{}}

	id, _ := fields[idKey].(string)
	if id == "" {
		return Element{}, invalid("element %q (%s) has no id", name, dtype)
	}
	elem.ID = id

	for key, v := range fields {
		switch key {
		case idKey:
		case metadataKey:
			md, ok := v.(map[string]any)
			if !ok {
				return Element{}, invalid("element %q (%s): metadata must be a map, got %T", name, dtype, v)
			}
			elem.Metadata = md
		default:
			if v == nil {
				continue
			}
			if _, nested := v.(map[string]any); nested {
				return Element{}, invalid("element %q (%s): entity %q must be a scalar", name, dtype, key)
			}
			elem.Entities[key] = fmt.Sprint(v)
		}
	}
	return elem, nil
}

func (c *Config) resolve(rawDir string) error {
	if rawDir == "" {
		return invalid("raw directory is required")
	}
	abs, err := filepath.Abs(rawDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", rawDir, err)
	}
	c.RawDir = abs

	o := &c.Options
	if o.SubjectStem == "" {
		o.SubjectStem = "sub"
	}
	if o.NCores <= 0 {
		o.NCores = runtime.NumCPU()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	o.LogLevel = strings.ToLower(o.LogLevel)
	if !slices.Contains(logLevels, o.LogLevel) {
		return invalid("log_level %q must be one of %v", o.LogLevel, logLevels)
	}
	if o.OutDir == "" {
		o.OutDir = filepath.Join(filepath.Dir(c.RawDir), "bids")
	}
	if o.OutDir, err = filepath.Abs(o.OutDir); err != nil {
		return fmt.Errorf("resolve %s: %w", o.OutDir, err)
	}
	if o.EventConfigDir == "" {
		o.EventConfigDir = c.RawDir
	}
	if o.ReportFile == "" {
		o.ReportFile = filepath.Join(filepath.Dir(o.OutDir), "bidsify_report.yaml")
	}
	if len(c.Mappings) == 0 {
		return invalid("no mappings configured")
	}
	return nil
}

func merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
