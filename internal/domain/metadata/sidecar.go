package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const indent = "    "

// ReadSidecar decodes a JSON sidecar. A missing file yields an empty map.
func ReadSidecar(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadSidecar, path, err)
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadSidecar, path, err)
	}
	return out, nil
}

// MergeSidecar adds fields to the sidecar at path. Existing keys not in
// fields are kept; keys in fields replace the stored value.
func MergeSidecar(path string, fields map[string]any) error {
	current, err := ReadSidecar(path)
	if err != nil {
		return err
	}
	for k, v := range fields {
		current[k] = v
	}
	data, err := json.MarshalIndent(current, "", indent)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteSidecar, path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteSidecar, path, err)
	}
	return nil
}
