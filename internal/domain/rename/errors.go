package rename

import (
	"errors"
	"fmt"

	"github.com/okian/bidsify/internal/domain/model"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrMissingTask   = errors.New("bold file without task entity")
	ErrUnknownEntity = errors.New("entity not allowed for modality type")
)

// MissingTaskError reports a bold file whose entities lack a task.
type MissingTaskError struct {
	Source   string
	Element  string
	DataType string
}

func (e *MissingTaskError) Error() string {
	return fmt.Sprintf("%s: could not assign a task name to %q; declare 'task' for element %q under data type %q",
		ErrMissingTask, e.Source, e.Element, e.DataType)
}

// Is matches ErrMissingTask and the configuration error kind.
func (e *MissingTaskError) Is(target error) bool {
	return target == ErrMissingTask || target == model.ErrConfig
}
