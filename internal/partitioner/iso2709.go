package partitioner

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/timmy/jobstore/internal/domain"
)

const (
	isoRecordTerminator   = 0x1D
	isoFieldTerminator    = 0x1E
	isoSubfieldDelimiter  = 0x1F
	isoLeaderLength       = 24
	isoDirectoryEntrySize = 12
)

// iso2709Reader splits ISO 2709 exchange data on the record terminator.
// Only ISO-8859-1 data is accepted; payloads keep their original bytes.
type iso2709Reader struct {
	counter *countingReader
	buf     *bufio.Reader
}

func newISO2709Reader(r io.Reader, charset string) (*iso2709Reader, error) {
	if normalizeCharset(charset) != charsetLatin1 {
		return nil, fatalf(nil, "ISO2709 data must be latin1, specification says %s", charset)
	}
	counter := &countingReader{r: r}
	return &iso2709Reader{counter: counter, buf: bufio.NewReader(counter)}, nil
}

func (r *iso2709Reader) BytesRead() int64 {
	return r.counter.n
}

func (r *iso2709Reader) Next() (*Record, error) {
	raw, err := r.buf.ReadBytes(isoRecordTerminator)
	if err == io.EOF {
		if len(bytes.TrimSpace(raw)) > 0 {
			return nil, fatalf(nil, "truncated ISO2709 record at end of data (%d bytes without terminator)", len(raw))
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, fatalf(err, "failed to read ISO2709 data")
	}

	// Exporters sometimes put line breaks between records
	raw = bytes.TrimLeft(raw, "\r\n ")

	rec := &Record{
		Data:     raw,
		Type:     domain.ItemTypeISO2709,
		Status:   domain.ItemStatusSuccess,
		Encoding: charsetLatin1,
	}

	fields, err := parseISO2709(raw)
	if err != nil {
		rec.Status = domain.ItemStatusFailure
		rec.Diagnostics = domain.Diagnostics{domain.NewFatalDiagnostic(err.Error())}
		return rec, nil
	}
	if len(fields) == 0 {
		rec.Status = domain.ItemStatusIgnore
		rec.Diagnostics = domain.Diagnostics{{Level: domain.DiagnosticWarning, Message: "Empty Record"}}
		return rec, nil
	}
	rec.Info = recordInfo(fields)
	return rec, nil
}

// parseISO2709 decodes the leader, the directory and the fields of one record.
func parseISO2709(raw []byte) ([]marcField, error) {
	if len(raw) < isoLeaderLength+1 {
		return nil, fmt.Errorf("record of %d bytes is shorter than the leader", len(raw))
	}
	recordLength, ok := isoNumber(raw[0:5])
	if !ok {
		return nil, fmt.Errorf("invalid record length in leader: %q", raw[0:5])
	}
	if recordLength != len(raw) {
		return nil, fmt.Errorf("leader declares %d bytes, record has %d", recordLength, len(raw))
	}
	baseAddress, ok := isoNumber(raw[12:17])
	if !ok {
		return nil, fmt.Errorf("invalid base address in leader: %q", raw[12:17])
	}
	if baseAddress <= isoLeaderLength || baseAddress > len(raw) {
		return nil, fmt.Errorf("base address %d outside record", baseAddress)
	}

	directory := raw[isoLeaderLength : baseAddress-1]
	if raw[baseAddress-1] != isoFieldTerminator {
		return nil, fmt.Errorf("directory is not terminated")
	}
	if len(directory)%isoDirectoryEntrySize != 0 {
		return nil, fmt.Errorf("directory length %d is not a multiple of %d", len(directory), isoDirectoryEntrySize)
	}

	var fields []marcField
	for off := 0; off < len(directory); off += isoDirectoryEntrySize {
		entry := directory[off : off+isoDirectoryEntrySize]
		tag := string(entry[0:3])
		length, okLen := isoNumber(entry[3:7])
		start, okStart := isoNumber(entry[7:12])
		if !okLen || !okStart {
			return nil, fmt.Errorf("invalid directory entry %q", entry)
		}
		// The field includes its terminator and must end before the record terminator.
		begin := baseAddress + start
		end := begin + length
		if length < 1 || end > len(raw)-1 {
			return nil, fmt.Errorf("field %s exceeds record", tag)
		}
		fields = append(fields, decodeISOField(tag, raw[begin:end-1]))
	}
	return fields, nil
}

// isoNumber parses a fixed-width unsigned decimal. Signs and blanks are rejected.
func isoNumber(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// decodeISOField splits field data into subfields. Fields without subfield delimiters are
// control fields and become a single subfield "a"; danMARC2 keeps 001 and 004 as data fields.
func decodeISOField(tag string, data []byte) marcField {
	field := marcField{Tag: tag}
	if bytes.IndexByte(data, isoSubfieldDelimiter) < 0 {
		field.Subfields = []marcSubfield{{Code: "a", Value: decodeLatin1(data)}}
		return field
	}
	parts := bytes.Split(data, []byte{isoSubfieldDelimiter})
	for _, p := range parts[1:] {
		if len(p) == 0 {
			continue
		}
		field.Subfields = append(field.Subfields, marcSubfield{
			Code:  string(p[0:1]),
			Value: decodeLatin1(p[1:]),
		})
	}
	return field
}
