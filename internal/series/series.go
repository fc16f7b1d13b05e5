// Package series loads and serializes the force data recorded alongside a
// trial video: a time column plus two force channels, kept as three parallel
// sequences of equal length.
//
// Parsing is deliberately lenient. Force plate exports from acquisition rigs
// arrive with ragged rows, blank fields and vendor quirks; a malformed field
// becomes 0 and a short row is skipped, so loading never fails.
package series

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Column headers of the serialized form.
const (
	TimeHeader   = "Time"
	Force1Header = "Force1"
	Force2Header = "Force2"
)

// Series holds the parsed force data as parallel sequences. The three
// slices are always the same length. Callers must treat them as read-only;
// trimming produces a new Series via SuffixFrom.
type Series struct {
	Time   []float64
	Force1 []float64
	Force2 []float64
}

// Len returns the number of samples.
func (s *Series) Len() int {
	return len(s.Time)
}

// SortedByTime reports whether the time sequence is non-decreasing.
// Parsing does not enforce ordering; callers that cut by time can use
// this to warn about files that would resolve cut points incorrectly.
func (s *Series) SortedByTime() bool {
	for i := 1; i < len(s.Time); i++ {
		if s.Time[i] < s.Time[i-1] {
			return false
		}
	}
	return true
}

// SuffixFrom returns a new Series holding copies of the samples from index
// i to the end. i is clamped into [0, Len()]; i == Len() yields an empty
// Series. The receiver is never modified.
func (s *Series) SuffixFrom(i int) *Series {
	if i < 0 {
		i = 0
	}
	if i > s.Len() {
		i = s.Len()
	}
	n := s.Len() - i
	out := &Series{
		Time:   make([]float64, n),
		Force1: make([]float64, n),
		Force2: make([]float64, n),
	}
	copy(out.Time, s.Time[i:])
	copy(out.Force1, s.Force1[i:])
	copy(out.Force2, s.Force2[i:])
	return out
}

// EncodeCSV serializes the series as CSV with a Time,Force1,Force2 header.
// An empty series encodes to the header line alone. Numbers use the
// shortest decimal form that re-parses to the same float64, so an encoded
// series re-parses to identical sequences.
func (s *Series) EncodeCSV() []byte {
	var b strings.Builder
	w := csv.NewWriter(&b)
	w.Write([]string{TimeHeader, Force1Header, Force2Header})
	for i := range s.Time {
		w.Write([]string{
			formatFloat(s.Time[i]),
			formatFloat(s.Force1[i]),
			formatFloat(s.Force2[i]),
		})
	}
	w.Flush()
	return []byte(b.String())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Parse reads delimited force data into a Series. Header lines are
// discarded, rows shorter than the layout's minimum field count are
// skipped, and fields that fail numeric parsing contribute 0. Parse is
// total: any input yields a valid (possibly empty) Series.
func Parse(r io.Reader, layout Layout) *Series {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	s := &Series{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A row the reader could not tokenize is skipped like a
			// short row; an unreadable stream ends the parse with
			// whatever was collected so far.
			if _, ok := err.(*csv.ParseError); ok {
				line++
				continue
			}
			break
		}
		line++
		if line <= layout.HeaderLines {
			continue
		}
		if len(record) < layout.MinFields {
			continue
		}
		s.Time = append(s.Time, CoerceNumeric(field(record, layout.TimeColumn)))
		s.Force1 = append(s.Force1, CoerceNumeric(field(record, layout.Force1Column)))
		s.Force2 = append(s.Force2, CoerceNumeric(field(record, layout.Force2Column)))
	}
	return s
}

// ParseFile opens path and parses it. The error covers file access only;
// the parse itself cannot fail.
func ParseFile(path string, layout Layout) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, layout), nil
}

// CoerceNumeric converts one field to a sample value. Malformed, empty and
// non-finite fields all coerce to 0 rather than failing; a missing column
// reaches this as "" and coerces the same way.
func CoerceNumeric(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// field returns record[i], or "" when the row is too short to have it.
func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}
