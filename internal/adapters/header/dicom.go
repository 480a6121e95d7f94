package header

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const msPerSecond = 1000.0

func readDICOM(path string) (Info, error) {
	dataset, err := dicom.ParseFile(path, nil) // pixel frames are not needed
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}

	var info Info
	if v, ok := firstString(dataset, tag.RepetitionTime); ok {
		if tr, err := strconv.ParseFloat(v, 64); err == nil && tr > 0 {
			info.RepetitionTime = tr / msPerSecond
		}
	}
	if v, ok := firstString(dataset, tag.NumberOfFrames); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			info.Slices = n
		}
	}
	return info, nil
}

// firstString returns the first value of a string-typed element.
func firstString(ds dicom.Dataset, t tag.Tag) (string, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return "", false
	}
	vals, ok := elem.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		return "", false
	}
	return strings.TrimSpace(vals[0]), true
}
