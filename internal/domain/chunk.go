package domain

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ChunkRecordCountUpperBound is the default number of items per chunk.
const ChunkRecordCountUpperBound = 10

// ChunkType tells which phase produced a chunk.
type ChunkType string

const (
	ChunkTypePartitioned ChunkType = "PARTITIONED"
	ChunkTypeProcessed   ChunkType = "PROCESSED"
	ChunkTypeDelivered   ChunkType = "DELIVERED"
)

// Phase returns the phase whose counters a chunk of this type feeds.
func (t ChunkType) Phase() (Phase, bool) {
	switch t {
	case ChunkTypePartitioned:
		return PhasePartitioning, true
	case ChunkTypeProcessed:
		return PhaseProcessing, true
	case ChunkTypeDelivered:
		return PhaseDelivering, true
	}
	return "", false
}

// ChunkTypeOf returns the chunk type that carries results of phase p.
func ChunkTypeOf(p Phase) ChunkType {
	switch p {
	case PhaseProcessing:
		return ChunkTypeProcessed
	case PhaseDelivering:
		return ChunkTypeDelivered
	default:
		return ChunkTypePartitioned
	}
}

// ItemStatus is the outcome of one item in one phase.
type ItemStatus string

const (
	ItemStatusSuccess ItemStatus = "SUCCESS"
	ItemStatusFailure ItemStatus = "FAILURE"
	ItemStatusIgnore  ItemStatus = "IGNORE"
)

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	return s == ItemStatusSuccess || s == ItemStatusFailure || s == ItemStatusIgnore
}

// ItemType tags the payload of an item.
type ItemType string

const (
	ItemTypeUnknown            ItemType = "UNKNOWN"
	ItemTypeGenericXML         ItemType = "GENERICXML"
	ItemTypeISO2709            ItemType = "ISO2709"
	ItemTypeDanMarc2LineFormat ItemType = "DANMARC2LINEFORMAT"
	ItemTypeString             ItemType = "STRING"
	ItemTypeJobEnd             ItemType = "JOB_END"
)

// ChunkItem is one record inside a chunk.
type ChunkItem struct {
	ID          int         `json:"id"`
	Status      ItemStatus  `json:"status"`
	Type        ItemType    `json:"type"`
	Data        []byte      `json:"data"`
	Encoding    string      `json:"encoding,omitempty"`
	TrackingID  string      `json:"trackingId,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics,omitempty"`
}

// Value implements the driver.Valuer interface.
func (i ChunkItem) Value() (driver.Value, error) {
	return jsonValue(i)
}

// Scan implements the sql.Scanner interface.
func (i *ChunkItem) Scan(value interface{}) error {
	return scanJSON(value, i, "ChunkItem")
}

// Chunk is the unit of work exchanged with processors and sinks.
type Chunk struct {
	JobID        int64       `json:"jobId"`
	ChunkID      int         `json:"chunkId"`
	Type         ChunkType   `json:"type"`
	Items        []ChunkItem `json:"items"`
	SequenceKeys []string    `json:"keys,omitempty"`
}

// Checksum identifies the content of the chunk items. Absent and empty data or
// diagnostics hash the same.
func Checksum(items []ChunkItem) (string, error) {
	canonical := make([]ChunkItem, len(items))
	for i, item := range items {
		if item.Data == nil {
			item.Data = []byte{}
		}
		if len(item.Diagnostics) == 0 {
			item.Diagnostics = nil
		}
		canonical[i] = item
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ChunkEntity is the persisted header of a partitioned chunk.
type ChunkEntity struct {
	JobID                  int64     `gorm:"primaryKey;autoIncrement:false" json:"jobId"`
	ChunkID                int       `gorm:"primaryKey;autoIncrement:false" json:"chunkId"`
	NumberOfItems          int       `gorm:"not null" json:"numberOfItems"`
	SequenceKeys           StringSet `gorm:"type:text" json:"keys"`
	TimeOfCreation         time.Time `json:"timeOfCreation"`
	TimeOfLastModification time.Time `json:"timeOfLastModification"`
}

// TableName returns the database table name for ChunkEntity.
func (ChunkEntity) TableName() string {
	return "chunks"
}

// ItemEntity keeps the outcome of one item in each phase.
type ItemEntity struct {
	JobID               int64      `gorm:"primaryKey;autoIncrement:false"`
	ChunkID             int        `gorm:"primaryKey;autoIncrement:false"`
	ItemID              int        `gorm:"primaryKey;autoIncrement:false"`
	PartitioningOutcome *ChunkItem `gorm:"type:text"`
	ProcessingOutcome   *ChunkItem `gorm:"type:text"`
	DeliveringOutcome   *ChunkItem `gorm:"type:text"`
}

// TableName returns the database table name for ItemEntity.
func (ItemEntity) TableName() string {
	return "items"
}

// Outcome returns the item as recorded for phase p.
func (e *ItemEntity) Outcome(p Phase) *ChunkItem {
	switch p {
	case PhasePartitioning:
		return e.PartitioningOutcome
	case PhaseProcessing:
		return e.ProcessingOutcome
	case PhaseDelivering:
		return e.DeliveringOutcome
	}
	return nil
}

// SetOutcome records item as the outcome for phase p.
func (e *ItemEntity) SetOutcome(p Phase, item ChunkItem) {
	switch p {
	case PhasePartitioning:
		e.PartitioningOutcome = &item
	case PhaseProcessing:
		e.ProcessingOutcome = &item
	case PhaseDelivering:
		e.DeliveringOutcome = &item
	}
}

// ChunkResult records that a phase result for a chunk was ingested.
// The key (job, chunk, type) makes resubmissions detectable.
type ChunkResult struct {
	JobID     int64     `gorm:"primaryKey;autoIncrement:false" json:"jobId"`
	ChunkID   int       `gorm:"primaryKey;autoIncrement:false" json:"chunkId"`
	Type      ChunkType `gorm:"primaryKey;type:text" json:"type"`
	Checksum  string    `gorm:"type:text;not null" json:"checksum"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Ignored   int       `json:"ignored"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the database table name for ChunkResult.
func (ChunkResult) TableName() string {
	return "chunk_results"
}
