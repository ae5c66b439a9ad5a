package partitioner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/timmy/jobstore/internal/domain"
)

func TestISO2709Records(t *testing.T) {
	good := danmarcISO("12345678", "n", "e")
	empty := buildISO()
	badLeader := append([]byte("xxxxx"), good[5:]...)

	data := bytes.Join([][]byte{good, empty, badLeader, good}, []byte("\n"))
	reader, err := NewReader(SplitterISO2709, bytes.NewReader(data), "latin-1", false)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	records := readAll(t, reader)

	wantStatus := []domain.ItemStatus{
		domain.ItemStatusSuccess,
		domain.ItemStatusIgnore,
		domain.ItemStatusFailure,
		domain.ItemStatusSuccess,
	}
	if len(records) != len(wantStatus) {
		t.Fatalf("got %d records, want %d", len(records), len(wantStatus))
	}
	for i, rec := range records {
		if rec.Status != wantStatus[i] {
			t.Errorf("record %d status = %s, want %s", i, rec.Status, wantStatus[i])
		}
	}
	if !records[2].Diagnostics.HasFatal() {
		t.Error("invalid record should carry a FATAL item diagnostic")
	}
	if records[1].Diagnostics[0].Message != "Empty Record" {
		t.Errorf("empty record diagnostic = %+v", records[1].Diagnostics)
	}
	if !bytes.Equal(records[0].Data, good) {
		t.Error("payload must keep the original record bytes")
	}
	if info := records[0].Info; info == nil || info.ID != "12345678" || info.Agency != "870970" {
		t.Errorf("record info = %+v", records[0].Info)
	}
	if reader.BytesRead() != int64(len(data)) {
		t.Errorf("BytesRead = %d, want %d", reader.BytesRead(), len(data))
	}
}

func TestISO2709MalformedNumbers(t *testing.T) {
	// Leader bytes 0-4 hold the record length; the first directory entry starts at 24 with
	// tag (3), field length (4) and start offset (5).
	patch := func(at int, value string) []byte {
		rec := danmarcISO("12345678", "n", "e")
		copy(rec[at:], value)
		return rec
	}
	tests := []struct {
		name string
		rec  []byte
	}{
		{"negative start offset", patch(31, "-9999")},
		{"signed start offset", patch(31, "+0000")},
		{"start offset beyond record", patch(31, "99999")},
		{"blank start offset", patch(31, "   12")},
		{"zero field length", patch(27, "0000")},
		{"negative field length", patch(27, "-001")},
		{"field length beyond record", patch(27, "9999")},
		{"signed record length", patch(0, "+")},
		{"signed base address", patch(12, "-")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewReader(SplitterISO2709, bytes.NewReader(tt.rec), "latin1", false)
			if err != nil {
				t.Fatalf("NewReader() error = %v", err)
			}
			rec, err := reader.Next()
			if err != nil {
				t.Fatalf("Next() error = %v, want a failed item", err)
			}
			if rec.Status != domain.ItemStatusFailure || !rec.Diagnostics.HasFatal() {
				t.Errorf("status = %s diagnostics = %+v, want FAILURE with a FATAL diagnostic", rec.Status, rec.Diagnostics)
			}
		})
	}
}

func TestISO2709Latin1Values(t *testing.T) {
	rec := buildISO(isoField{tag: "001", data: "00\x1fa\xe6\xf8\xe5\x1fb870970"})
	fields, err := parseISO2709(rec)
	if err != nil {
		t.Fatalf("parseISO2709() error = %v", err)
	}
	if got := fields[0].Subfields[0].Value; got != "æøå" {
		t.Errorf("decoded value = %q, want æøå", got)
	}
}

func TestISO2709Fatal(t *testing.T) {
	if _, err := NewReader(SplitterISO2709, strings.NewReader(""), "utf8", false); !IsFatal(err) {
		t.Errorf("non latin1 charset: error = %v, want fatal", err)
	}

	truncated := danmarcISO("1", "n", "e")
	truncated = truncated[:len(truncated)-10]
	reader, err := NewReader(SplitterISO2709, bytes.NewReader(truncated), "latin1", false)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if _, err := reader.Next(); !IsFatal(err) {
		t.Errorf("truncated data: error = %v, want fatal", err)
	}
}
