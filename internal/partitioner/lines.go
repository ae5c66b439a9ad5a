package partitioner

import (
	"bufio"
	"io"
	"strings"

	"github.com/timmy/jobstore/internal/domain"
)

// linesReader emits every non-blank line as a record.
type linesReader struct {
	counter *countingReader
	scanner *bufio.Scanner
}

func newLinesReader(r io.Reader, charset string) (*linesReader, error) {
	counter := &countingReader{r: r}
	decoded, err := decodingReader(counter, charset)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &linesReader{counter: counter, scanner: scanner}, nil
}

func (r *linesReader) BytesRead() int64 {
	return r.counter.n
}

func (r *linesReader) Next() (*Record, error) {
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		return &Record{
			Data:     []byte(line),
			Type:     domain.ItemTypeString,
			Status:   domain.ItemStatusSuccess,
			Encoding: charsetUTF8,
		}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fatalf(err, "failed to read line data")
	}
	return nil, io.EOF
}
