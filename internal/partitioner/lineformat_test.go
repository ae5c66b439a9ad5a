package partitioner

import (
	"strings"
	"testing"

	"github.com/timmy/jobstore/internal/domain"
)

func TestLineFormatRecords(t *testing.T) {
	data := "001 00 *a 1234 *b 870970\n004 00 *r n *a h\n245 00 *a A title\n    continued\n$\n" +
		"\n" +
		"001 00 *a 5678 *b 870970\n004 00 *r d *a b\n$\n" +
		"?? broken line\n$\n"

	reader, err := NewReader(SplitterDanMarc2, strings.NewReader(data), "utf8", false)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	records := readAll(t, reader)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	first := records[0]
	if first.Info == nil || first.Info.ID != "1234" || first.Info.Kind != KindHead || first.Info.Deleted {
		t.Errorf("record 0 info = %+v", first.Info)
	}
	if second := records[1].Info; second == nil || second.Kind != KindVolume || !second.Deleted {
		t.Errorf("record 1 info = %+v", second)
	}
	if records[2].Status != domain.ItemStatusFailure || !records[2].Diagnostics.HasFatal() {
		t.Errorf("record 2 = %s %+v, want FAILURE with FATAL diagnostic", records[2].Status, records[2].Diagnostics)
	}
	if !strings.HasSuffix(string(first.Data), "\n$\n") {
		t.Errorf("record 0 payload = %q", first.Data)
	}
}

func TestSplitLineSubfields(t *testing.T) {
	got := splitLineSubfields("*a 5 @* 3 *b x")
	if len(got) != 2 || got[0].Value != "5 * 3" || got[1].Code != "b" || got[1].Value != "x" {
		t.Errorf("subfields = %+v", got)
	}
}
