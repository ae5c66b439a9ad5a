package partitioner

import (
	"bytes"
	"testing"
)

func TestReorderingReplaysHierarchyLast(t *testing.T) {
	input := [][]byte{
		danmarcISO("vol-del", "d", "b"),
		danmarcISO("standalone-1", "n", "e"),
		danmarcISO("head-del", "d", "h"),
		danmarcISO("vol", "n", "b"),
		danmarcISO("section", "n", "s"),
		danmarcISO("standalone-2", "n", "e"),
		danmarcISO("head", "n", "h"),
		danmarcISO("section-del", "d", "s"),
	}
	reader, err := NewReader(SplitterISO2709, bytes.NewReader(bytes.Join(input, nil)), "latin1", true)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	want := []string{"standalone-1", "standalone-2", "head", "section", "vol", "vol-del", "section-del", "head-del"}
	records := readAll(t, reader)
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, rec := range records {
		if rec.Info.ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, rec.Info.ID, want[i])
		}
	}
}

func TestReorderingIsDeterministic(t *testing.T) {
	input := bytes.Join([][]byte{
		danmarcISO("v1", "n", "b"), danmarcISO("v2", "n", "b"), danmarcISO("h1", "n", "h"), danmarcISO("v3", "n", "b"),
	}, nil)

	var runs [][]string
	for i := 0; i < 3; i++ {
		reader, _ := NewReader(SplitterISO2709, bytes.NewReader(input), "latin1", true)
		var ids []string
		for _, rec := range readAll(t, reader) {
			ids = append(ids, rec.Info.ID)
		}
		runs = append(runs, ids)
	}
	for i := 1; i < len(runs); i++ {
		for j := range runs[0] {
			if runs[i][j] != runs[0][j] {
				t.Fatalf("run %d differs: %v vs %v", i, runs[i], runs[0])
			}
		}
	}
	if runs[0][0] != "h1" || runs[0][1] != "v1" {
		t.Errorf("order = %v, want head first then volumes in input order", runs[0])
	}
}

func TestParseSplitter(t *testing.T) {
	if s, err := ParseSplitter(" iso2709 "); err != nil || s != SplitterISO2709 {
		t.Errorf("ParseSplitter(iso2709) = %q, %v", s, err)
	}
	if _, err := ParseSplitter("VIAF"); !IsFatal(err) || err.Error() != "unknown data partitioner: VIAF" {
		t.Errorf("ParseSplitter(VIAF) error = %v", err)
	}
}
