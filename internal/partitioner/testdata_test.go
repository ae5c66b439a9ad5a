package partitioner

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

// isoField is tag plus raw field data without the field terminator.
type isoField struct {
	tag  string
	data string
}

// buildISO assembles one ISO 2709 record.
func buildISO(fields ...isoField) []byte {
	var dir, body strings.Builder
	for _, f := range fields {
		data := f.data + "\x1e"
		fmt.Fprintf(&dir, "%s%04d%05d", f.tag, len(data), body.Len())
		body.WriteString(data)
	}
	base := 24 + dir.Len() + 1
	total := base + body.Len() + 1
	leader := fmt.Sprintf("%05dnam  22%05d   4500", total, base)
	return []byte(leader + dir.String() + "\x1e" + body.String() + "\x1d")
}

// danmarcISO builds a record with 001 *a id *b agency and 004 *r status *a kind.
func danmarcISO(id, status, kind string) []byte {
	return buildISO(
		isoField{tag: "001", data: "00\x1fa" + id + "\x1fb870970"},
		isoField{tag: "004", data: "00\x1fr" + status + "\x1fa" + kind},
		isoField{tag: "245", data: "00\x1fatitle " + id},
	)
}

// readAll drains reader, failing the test on errors.
func readAll(t *testing.T, reader RecordReader) []*Record {
	t.Helper()
	var out []*Record
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, rec)
	}
}

func lines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "record %d\n", i)
	}
	return b.String()
}
