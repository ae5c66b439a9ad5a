package partitioner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/timmy/jobstore/internal/domain"
)

func partitionLines(t *testing.T, data string, size int) ([]*domain.Chunk, *Result) {
	t.Helper()
	reader, err := NewReader(SplitterLines, strings.NewReader(data), "utf8", false)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	var chunks []*domain.Chunk
	res, err := NewChunker(size, SubmitterKeys{Submitter: 870970}).Partition(context.Background(), 7, reader,
		func(c *domain.Chunk) error {
			chunks = append(chunks, c)
			return nil
		})
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	return chunks, res
}

func TestPartitionChunkBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		records    int
		wantChunks []int
	}{
		{name: "fifteen records", records: 15, wantChunks: []int{10, 5}},
		{name: "exact multiple", records: 20, wantChunks: []int{10, 10}},
		{name: "single record", records: 1, wantChunks: []int{1}},
		{name: "below bound", records: 9, wantChunks: []int{9}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chunks, res := partitionLines(t, lines(tc.records), domain.ChunkRecordCountUpperBound)

			if res.NumberOfItems != tc.records {
				t.Errorf("NumberOfItems = %d, want %d", res.NumberOfItems, tc.records)
			}
			if res.NumberOfChunks != len(tc.wantChunks) || len(chunks) != len(tc.wantChunks) {
				t.Fatalf("chunks = %d (result %d), want %d", len(chunks), res.NumberOfChunks, len(tc.wantChunks))
			}
			total := 0
			for i, c := range chunks {
				if c.ChunkID != i {
					t.Errorf("chunk %d has id %d", i, c.ChunkID)
				}
				if c.JobID != 7 || c.Type != domain.ChunkTypePartitioned {
					t.Errorf("chunk %d: job %d type %s", i, c.JobID, c.Type)
				}
				if len(c.Items) != tc.wantChunks[i] {
					t.Errorf("chunk %d has %d items, want %d", i, len(c.Items), tc.wantChunks[i])
				}
				for j, item := range c.Items {
					if item.ID != j {
						t.Errorf("chunk %d item %d has id %d", i, j, item.ID)
					}
					if item.TrackingID == "" {
						t.Errorf("chunk %d item %d has no tracking id", i, j)
					}
				}
				total += len(c.Items)
			}
			if total != res.NumberOfItems {
				t.Errorf("sum of chunk items %d != NumberOfItems %d", total, res.NumberOfItems)
			}
			if res.Counts.Succeeded != tc.records {
				t.Errorf("succeeded = %d, want %d", res.Counts.Succeeded, tc.records)
			}
			if res.BytesRead != int64(len(lines(tc.records))) {
				t.Errorf("BytesRead = %d, want %d", res.BytesRead, len(lines(tc.records)))
			}
		})
	}
}

func TestPartitionWithoutRecordsYieldsJobEnd(t *testing.T) {
	chunks, res := partitionLines(t, "\n\n", 10)

	if res.NumberOfChunks != 1 || res.NumberOfItems != 1 {
		t.Fatalf("got %d chunks / %d items, want 1/1", res.NumberOfChunks, res.NumberOfItems)
	}
	item := chunks[0].Items[0]
	if item.Type != domain.ItemTypeJobEnd || item.Status != domain.ItemStatusSuccess {
		t.Errorf("item = %+v, want JOB_END SUCCESS", item)
	}
}

func TestPartitionStopsOnEmitError(t *testing.T) {
	reader, _ := NewReader(SplitterLines, strings.NewReader(lines(25)), "utf8", false)
	boom := errors.New("store down")
	calls := 0
	_, err := NewChunker(10, nil).Partition(context.Background(), 1, reader, func(*domain.Chunk) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("emit called %d times after failure", calls)
	}
}

func TestSequenceKeys(t *testing.T) {
	data := string(danmarcISO("1", "c", "e")) + string(danmarcISO("2", "c", "e")) + string(danmarcISO("1", "c", "e"))
	reader, err := NewReader(SplitterISO2709, strings.NewReader(data), "latin1", false)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	var chunks []*domain.Chunk
	_, err = NewChunker(10, SubmitterKeys{Submitter: 123}).Partition(context.Background(), 1, reader,
		func(c *domain.Chunk) error {
			chunks = append(chunks, c)
			return nil
		})
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	want := []string{"870970:1", "870970:2"}
	got := chunks[0].SequenceKeys
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

func TestSubmitterKeysFallback(t *testing.T) {
	keys := SubmitterKeys{Submitter: 123}
	if got := keys.KeyFor(&Record{}); got != "123" {
		t.Errorf("KeyFor(no info) = %q, want 123", got)
	}
	if got := keys.KeyFor(&Record{Info: &RecordInfo{ID: "x"}}); got != "123:x" {
		t.Errorf("KeyFor(no agency) = %q, want 123:x", got)
	}
}

func TestPartitionReplayedItems(t *testing.T) {
	items := []domain.ChunkItem{
		{ID: 4, Status: domain.ItemStatusSuccess, Type: domain.ItemTypeString, Data: []byte("a"), TrackingID: "old-4"},
		{ID: 7, Status: domain.ItemStatusFailure, Type: domain.ItemTypeString, Data: []byte("bc"), TrackingID: "old-7",
			Diagnostics: domain.Diagnostics{domain.NewFatalDiagnostic("bad record")}},
		{ID: 2, Status: domain.ItemStatusSuccess, Type: domain.ItemTypeString, Data: []byte("def"), TrackingID: "old-2"},
	}
	var chunks []*domain.Chunk
	res, err := NewChunker(2, nil).Partition(context.Background(), 5, NewItemReader(items), func(c *domain.Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	if res.NumberOfChunks != 2 || res.NumberOfItems != 3 || res.BytesRead != 6 {
		t.Fatalf("result = %+v, want 2 chunks, 3 items, 6 bytes", res)
	}
	if res.Counts.Failed != 1 || res.Counts.Succeeded != 2 {
		t.Errorf("counts = %+v", res.Counts)
	}
	got := append(append([]domain.ChunkItem{}, chunks[0].Items...), chunks[1].Items...)
	for i, item := range got {
		if string(item.Data) != string(items[i].Data) || item.Status != items[i].Status {
			t.Errorf("item %d = %+v, want data %q status %s", i, item, items[i].Data, items[i].Status)
		}
		if item.TrackingID == items[i].TrackingID {
			t.Errorf("item %d kept tracking id %q", i, item.TrackingID)
		}
	}
	if chunks[1].Items[0].ID != 0 || chunks[0].Items[1].ID != 1 {
		t.Errorf("items were not renumbered within their chunks")
	}
	if len(got[1].Diagnostics) != 1 {
		t.Errorf("diagnostics lost: %+v", got[1])
	}
}
