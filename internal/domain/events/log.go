package events

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	preambleLines = 3

	colEventType = "Event Type"
	colCode      = "Code"
	colTime      = "Time"
	colDuration  = "Duration"
)

// IgnoredColumns are present in Presentation logs but never read.
var IgnoredColumns = []string{
	"Uncertainty", "Subject", "Trial", "Uncertainty.1",
	"ReqTime", "ReqDur", "Stim Type", "Pair Index",
}

// Row is one event of the log. Times are in the log's native unit until
// the parser rebases them.
type Row struct {
	EventType string
	Code      Code
	Time      float64
	Duration  float64 // NaN when the cell is empty or not a number
}

// ReadLog parses a tab-delimited Presentation log.
func ReadLog(r io.Reader) ([]Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for i := 0; i < preambleLines; i++ {
		if !sc.Scan() {
			return nil, dataErr(ErrMalformedLog, "log ends inside the preamble")
		}
	}

	var header []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		header = strings.Split(line, "\t")
		break
	}
	if header == nil {
		return nil, dataErr(ErrMalformedLog, "missing header row")
	}
	cols := columnIndex(header)
	for _, c := range []string{colCode, colTime} {
		if _, ok := cols[c]; !ok {
			return nil, dataErr(ErrMalformedLog, "missing column %q", c)
		}
	}

	var rows []Row
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		t, err := strconv.ParseFloat(cell(cells, cols, colTime), 64)
		if err != nil {
			continue
		}
		dur, err := strconv.ParseFloat(cell(cells, cols, colDuration), 64)
		if err != nil {
			dur = math.NaN()
		}
		rows = append(rows, Row{
			EventType: cell(cells, cols, colEventType),
			Code:      ParseCode(cell(cells, cols, colCode)),
			Time:      t,
			Duration:  dur,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return rows, nil
}

// columnIndex maps header names to positions. The first occurrence of a
// name wins and ignored columns are left out.
func columnIndex(header []string) map[string]int {
	ignored := make(map[string]struct{}, len(IgnoredColumns))
	for _, c := range IgnoredColumns {
		ignored[c] = struct{}{}
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, skip := ignored[h]; skip {
			continue
		}
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func cell(cells []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}
