package partitioner

import (
	"io"
	"sort"
)

// reorderingReader passes standalone records through and defers the records of a
// multi-volume hierarchy until the base reader is exhausted. Deferred records are then
// replayed heads first, deletions last, so a consumer always sees a parent before its
// children and children are removed before their parent.
type reorderingReader struct {
	base     RecordReader
	deferred []*Record
	drained  bool
	next     int
}

// NewReordering wraps base with deterministic hierarchy ordering.
func NewReordering(base RecordReader) RecordReader {
	return &reorderingReader{base: base}
}

func (r *reorderingReader) Next() (*Record, error) {
	for !r.drained {
		rec, err := r.base.Next()
		if err == io.EOF {
			r.drained = true
			sort.SliceStable(r.deferred, func(i, j int) bool {
				return replayRank(r.deferred[i].Info) < replayRank(r.deferred[j].Info)
			})
			break
		}
		if err != nil {
			return nil, err
		}
		if replayRank(rec.Info) < 0 {
			return rec, nil
		}
		r.deferred = append(r.deferred, rec)
	}

	if r.next >= len(r.deferred) {
		return nil, io.EOF
	}
	rec := r.deferred[r.next]
	r.deferred[r.next] = nil
	r.next++
	return rec, nil
}

func (r *reorderingReader) BytesRead() int64 {
	return r.base.BytesRead()
}

// replayRank orders HEAD, SECTION, VOLUME, VOLUME_DELETE, SECTION_DELETE, HEAD_DELETE.
// Records that are not deferred rank -1.
func replayRank(info *RecordInfo) int {
	if info == nil {
		return -1
	}
	switch info.Kind {
	case KindHead:
		if info.Deleted {
			return 5
		}
		return 0
	case KindSection:
		if info.Deleted {
			return 4
		}
		return 1
	case KindVolume:
		if info.Deleted {
			return 3
		}
		return 2
	}
	return -1
}
