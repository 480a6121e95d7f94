package events

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Columns of an event table.
var Columns = []string{"onset", "duration", "weight", "trial_type"}

// WriteTSV writes events as a tab-separated table with a header row.
func WriteTSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range events {
		rec := []string{formatFloat(e.Onset), formatFloat(e.Duration), formatFloat(e.Weight), e.TrialType}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatFloat keeps a decimal point on integral values: 1 is written "1.0".
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
