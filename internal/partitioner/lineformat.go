package partitioner

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/timmy/jobstore/internal/domain"
)

var fieldLinePattern = regexp.MustCompile(`^([0-9A-Za-z]{3}) (.{2}) ?(.*)$`)

// lineFormatReader reads danMARC2 line format: one field per line, continuation lines
// indented, records ended by a line holding "$" or by a blank line.
type lineFormatReader struct {
	counter *countingReader
	scanner *bufio.Scanner
	done    bool
}

func newLineFormatReader(r io.Reader, charset string) (*lineFormatReader, error) {
	counter := &countingReader{r: r}
	decoded, err := decodingReader(counter, charset)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &lineFormatReader{counter: counter, scanner: scanner}, nil
}

func (r *lineFormatReader) BytesRead() int64 {
	return r.counter.n
}

func (r *lineFormatReader) Next() (*Record, error) {
	if r.done {
		return nil, io.EOF
	}

	var lines []string
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.TrimSpace(line) == "$" {
			if len(lines) == 0 {
				continue
			}
			return buildLineFormatRecord(lines), nil
		}
		lines = append(lines, line)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fatalf(err, "failed to read line format data")
	}
	r.done = true
	if len(lines) == 0 {
		return nil, io.EOF
	}
	return buildLineFormatRecord(lines), nil
}

func buildLineFormatRecord(lines []string) *Record {
	rec := &Record{
		Data:     []byte(strings.Join(lines, "\n") + "\n$\n"),
		Type:     domain.ItemTypeDanMarc2LineFormat,
		Status:   domain.ItemStatusSuccess,
		Encoding: charsetUTF8,
	}
	fields, err := parseLineFormat(lines)
	if err != nil {
		rec.Status = domain.ItemStatusFailure
		rec.Diagnostics = domain.Diagnostics{domain.NewFatalDiagnostic(err.Error())}
		return rec
	}
	rec.Info = recordInfo(fields)
	return rec
}

func parseLineFormat(lines []string) ([]marcField, error) {
	var (
		fields  []marcField
		current []string
	)
	for i, line := range lines {
		if line[0] == ' ' || line[0] == '\t' {
			if len(current) == 0 {
				return nil, fmt.Errorf("line %d: continuation line without a field", i+1)
			}
			current[len(current)-1] += " " + strings.TrimSpace(line)
			continue
		}
		if !fieldLinePattern.MatchString(line) {
			return nil, fmt.Errorf("line %d: invalid field line %q", i+1, line)
		}
		current = append(current, line)
	}
	for _, line := range current {
		m := fieldLinePattern.FindStringSubmatch(line)
		fields = append(fields, marcField{Tag: m[1], Subfields: splitLineSubfields(m[3])})
	}
	return fields, nil
}

// splitLineSubfields splits "*a value *b value" into subfields. "@*" escapes a literal asterisk.
func splitLineSubfields(s string) []marcSubfield {
	var (
		subfields []marcSubfield
		value     strings.Builder
		code      string
		inField   bool
	)
	flush := func() {
		if inField {
			subfields = append(subfields, marcSubfield{Code: code, Value: strings.TrimSpace(value.String())})
		}
		value.Reset()
	}
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '@' && i+1 < len(s) && s[i+1] == '*':
			value.WriteByte('*')
			i++
		case s[i] == '*' && i+1 < len(s):
			flush()
			code = s[i+1 : i+2]
			inField = true
			i++
		default:
			value.WriteByte(s[i])
		}
	}
	flush()
	return subfields
}
