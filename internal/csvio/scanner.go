// Package csvio implements a streaming scanner for the upstream bulk dump
// format: comma-delimited, double-quote quoted, backslash-escaped CSV with
// newlines allowed inside quoted cells. The stdlib encoding/csv reader has
// no escape-character support, which the dumps rely on, so the scanner is
// implemented directly.
package csvio

import (
	"bufio"
	"fmt"
	"io"

	"caselake/internal/logging"
)

// Scanner reads records from a bulk CSV stream one at a time.
// Usage mirrors bufio.Scanner:
//
//	sc := csvio.NewScanner(r, 128<<20)
//	for sc.Scan() {
//	    rec := sc.Record()
//	    ...
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	r      *bufio.Reader
	record []string
	field  []byte
	err    error
	done   bool
	line   int64 // physical line number, for error reporting
	count  int64 // records emitted
}

// NewScanner returns a Scanner reading from r with the given buffer size
// in bytes. Large buffers matter: single opinion cells run to megabytes.
func NewScanner(r io.Reader, bufSize int) *Scanner {
	if bufSize < 64*1024 {
		bufSize = 64 * 1024
	}
	return &Scanner{
		r:    bufio.NewReaderSize(r, bufSize),
		line: 1,
	}
}

// Record returns the fields of the last scanned record. The slice is
// only valid until the next call to Scan.
func (s *Scanner) Record() []string { return s.record }

// Err returns the first error encountered, excluding io.EOF.
func (s *Scanner) Err() error { return s.err }

// Count returns the number of records emitted so far.
func (s *Scanner) Count() int64 { return s.count }

const (
	stateFieldStart = iota
	stateUnquoted
	stateQuoted
	stateQuoteEnd // just consumed the closing quote
)

// Scan advances to the next record. It returns false at end of input or
// on error; check Err afterwards.
func (s *Scanner) Scan() bool {
	if s.done || s.err != nil {
		return false
	}

	s.record = s.record[:0]
	s.field = s.field[:0]
	state := stateFieldStart
	sawAny := false

	endField := func() {
		s.record = append(s.record, string(s.field))
		s.field = s.field[:0]
	}

	for {
		b, err := s.r.ReadByte()
		if err == io.EOF {
			s.done = true
			switch state {
			case stateQuoted:
				s.err = fmt.Errorf("csvio: unterminated quoted field at line %d", s.line)
				return false
			case stateFieldStart:
				if !sawAny {
					return false // clean end of input
				}
				endField()
			default:
				endField()
			}
			s.count++
			return true
		}
		if err != nil {
			s.err = fmt.Errorf("csvio: read at line %d: %w", s.line, err)
			return false
		}
		sawAny = true

		switch state {
		case stateFieldStart:
			switch b {
			case '"':
				state = stateQuoted
			case ',':
				endField()
			case '\n':
				s.line++
				// bare newline at field start after fields means empty last field
				endField()
				s.count++
				return true
			case '\r':
				// handled at the following '\n'
			case '\\':
				if !s.escapeNext() {
					return false
				}
				state = stateUnquoted
			default:
				s.field = append(s.field, b)
				state = stateUnquoted
			}

		case stateUnquoted:
			switch b {
			case ',':
				endField()
				state = stateFieldStart
			case '\n':
				s.line++
				s.trimCR()
				endField()
				s.count++
				return true
			case '\\':
				if !s.escapeNext() {
					return false
				}
			default:
				s.field = append(s.field, b)
			}

		case stateQuoted:
			switch b {
			case '"':
				// "" inside quotes is a literal quote
				next, err := s.r.Peek(1)
				if err == nil && next[0] == '"' {
					s.r.ReadByte()
					s.field = append(s.field, '"')
					continue
				}
				state = stateQuoteEnd
			case '\\':
				if !s.escapeNext() {
					return false
				}
			case '\n':
				s.line++
				s.field = append(s.field, b)
			default:
				s.field = append(s.field, b)
			}

		case stateQuoteEnd:
			switch b {
			case ',':
				endField()
				state = stateFieldStart
			case '\n':
				s.line++
				endField()
				s.count++
				return true
			case '\r':
				// wait for the '\n'
			default:
				s.err = fmt.Errorf("csvio: unexpected %q after closing quote at line %d", b, s.line)
				return false
			}
		}
	}
}

// escapeNext consumes the byte after a backslash and appends it literally.
func (s *Scanner) escapeNext() bool {
	b, err := s.r.ReadByte()
	if err == io.EOF {
		// trailing backslash: keep it
		s.field = append(s.field, '\\')
		return true
	}
	if err != nil {
		s.err = fmt.Errorf("csvio: read escape at line %d: %w", s.line, err)
		return false
	}
	if b == '\n' {
		s.line++
	}
	s.field = append(s.field, b)
	return true
}

// trimCR drops a trailing carriage return from the current field.
func (s *Scanner) trimCR() {
	if n := len(s.field); n > 0 && s.field[n-1] == '\r' {
		s.field = s.field[:n-1]
	}
}

// Projection maps a dump header onto the projected column set.
type Projection struct {
	Columns []string // projected column names, in output order
	idx     []int    // source index per projected column
	width   int      // source header width
}

// NewProjection validates that every wanted column exists in the header
// and builds the index mapping. Missing columns are reported together.
func NewProjection(header, want []string) (*Projection, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}

	p := &Projection{
		Columns: append([]string(nil), want...),
		idx:     make([]int, len(want)),
		width:   len(header),
	}
	var missing []string
	for i, name := range want {
		j, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		p.idx[i] = j
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csvio: missing expected columns: %v", missing)
	}
	logging.Get(logging.CategoryCSV).Debug("projection built: %v out of %d source columns", want, len(header))
	return p, nil
}

// Apply projects a source record to the wanted columns. Records shorter
// than the header are padded with empty cells; extra cells are ignored.
// The upstream dumps are ragged, so this is tolerant rather than strict.
func (p *Projection) Apply(record []string) []string {
	out := make([]string, len(p.idx))
	for i, j := range p.idx {
		if j < len(record) {
			out[i] = record[j]
		}
	}
	return out
}
