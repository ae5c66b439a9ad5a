// Package partitioner turns a raw data file into ordered, size-bounded chunks.
package partitioner

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/timmy/jobstore/internal/domain"
)

// RecordSplitter selects how a data file is cut into records.
type RecordSplitter string

const (
	SplitterXML      RecordSplitter = "XML"
	SplitterISO2709  RecordSplitter = "ISO2709"
	SplitterDanMarc2 RecordSplitter = "DANMARC2_LINE_FORMAT"
	SplitterLines    RecordSplitter = "LINES"
)

// maxLineBytes bounds a single line of a line-oriented data file.
const maxLineBytes = 16 << 20

// Record is one logical record read from a data file.
type Record struct {
	Data        []byte
	Type        domain.ItemType
	Status      domain.ItemStatus
	Encoding    string
	Diagnostics domain.Diagnostics
	Info        *RecordInfo
}

// RecordReader produces the records of a data file in order.
type RecordReader interface {
	// Next returns the next record, or io.EOF after the last one.
	// A *FatalError means the data file cannot be read any further.
	Next() (*Record, error)
	// BytesRead reports how many bytes of the data file were consumed.
	BytesRead() int64
}

// FatalError marks a data file that is malformed or unreadable as a whole.
type FatalError struct {
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatalf(err error, format string, args ...interface{}) *FatalError {
	return &FatalError{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsFatal reports whether err is a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ParseSplitter resolves a record splitter name.
func ParseSplitter(name string) (RecordSplitter, error) {
	s := RecordSplitter(strings.ToUpper(strings.TrimSpace(name)))
	switch s {
	case SplitterXML, SplitterISO2709, SplitterDanMarc2, SplitterLines:
		return s, nil
	}
	return "", fatalf(nil, "unknown data partitioner: %s", name)
}

// NewReader returns the record reader for splitter over r.
// With reorder set, the reader is wrapped so deferred head, section and volume records
// are replayed after the rest in a fixed order.
func NewReader(splitter RecordSplitter, r io.Reader, charset string, reorder bool) (RecordReader, error) {
	var (
		reader RecordReader
		err    error
	)
	switch splitter {
	case SplitterXML:
		reader, err = newXMLReader(r, charset)
	case SplitterISO2709:
		reader, err = newISO2709Reader(r, charset)
	case SplitterDanMarc2:
		reader, err = newLineFormatReader(r, charset)
	case SplitterLines:
		reader, err = newLinesReader(r, charset)
	default:
		return nil, fatalf(nil, "unknown data partitioner: %s", splitter)
	}
	if err != nil {
		return nil, err
	}
	if reorder {
		reader = NewReordering(reader)
	}
	return reader, nil
}

// countingReader counts bytes read from the underlying reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
