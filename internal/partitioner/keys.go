package partitioner

import "strconv"

// KeyGenerator derives the ordering key of an item. Items sharing a key must not be
// processed concurrently downstream.
type KeyGenerator interface {
	KeyFor(rec *Record) string
}

// SubmitterKeys keys records by agency and record id, falling back to the submitter.
type SubmitterKeys struct {
	Submitter int64
}

func (k SubmitterKeys) KeyFor(rec *Record) string {
	submitter := strconv.FormatInt(k.Submitter, 10)
	if rec == nil || rec.Info == nil || rec.Info.ID == "" {
		return submitter
	}
	agency := rec.Info.Agency
	if agency == "" {
		agency = submitter
	}
	return agency + ":" + rec.Info.ID
}
