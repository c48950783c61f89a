package normalizer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// row gives header-keyed access to one CSV record. Columns the record is
// too short to contain read as "".
type row struct {
	cols   map[string]int
	fields []string
}

func (r row) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

// scanTable reads the header, checks required columns and calls fn for
// every data record. Records the CSV reader rejects are counted in
// malformed and skipped. stop, when positive, bounds the number of data
// records passed to fn.
func scanTable(r io.Reader, required []string, stop int, fn func(row)) (malformed int, err error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("empty file: no header row")
		}
		return 0, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return 0, fmt.Errorf("missing required column %q", c)
		}
	}

	seen := 0
	for stop <= 0 || seen < stop {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				malformed++
				seen++
				continue
			}
			return malformed, fmt.Errorf("read record: %w", err)
		}
		seen++
		fn(row{cols: cols, fields: fields})
	}
	return malformed, nil
}

// parseID accepts "862" and "862.0". Anything else, including fractional
// and non-finite values, is not an id.
func parseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// parseFloat returns the numeric value of s and whether it was present.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func floatOrZero(s string) float64 {
	f, _ := parseFloat(s)
	return f
}

// intOrZero coerces "5415" and "5415.0" alike; fractions truncate.
func intOrZero(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, ok := parseFloat(s)
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}
