package domain

import "time"

// Job is the durable record of one job and the snapshot returned to clients.
type Job struct {
	ID                     int64               `gorm:"primaryKey;autoIncrement" json:"jobId"`
	Specification          JobSpecification    `gorm:"type:text;not null" json:"specification"`
	Type                   JobType             `gorm:"type:text;not null;index:idx_jobs_type" json:"-"`
	SubmitterID            int64               `gorm:"index:idx_jobs_submitter" json:"-"`
	DataFile               string              `gorm:"type:text;index:idx_jobs_datafile" json:"-"`
	FlowStoreReferences    FlowStoreReferences `gorm:"type:text" json:"flowStoreReferences"`
	NumberOfChunks         int                 `gorm:"not null;default:0" json:"numberOfChunks"`
	NumberOfItems          int                 `gorm:"not null;default:0" json:"numberOfItems"`
	State                  State               `gorm:"type:text;not null" json:"state"`
	Diagnostics            Diagnostics         `gorm:"type:text" json:"diagnostics"`
	FatalError             bool                `gorm:"not null;default:false;index:idx_jobs_fatal" json:"fatalError"`
	TimeOfCreation         time.Time           `gorm:"not null;index:idx_jobs_created" json:"timeOfCreation"`
	TimeOfLastModification time.Time           `json:"timeOfLastModification"`
	TimeOfCompletion       *time.Time          `gorm:"index:idx_jobs_completed" json:"timeOfCompletion,omitempty"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// NewJob prepares an unsaved job for spec.
func NewJob(spec JobSpecification, now time.Time) *Job {
	return &Job{
		Specification:          spec,
		Type:                   spec.Type,
		SubmitterID:            spec.SubmitterID,
		DataFile:               spec.DataFile,
		FlowStoreReferences:    FlowStoreReferences{},
		State:                  NewState(),
		Diagnostics:            Diagnostics{},
		TimeOfCreation:         now,
		TimeOfLastModification: now,
	}
}

// SetType changes the job type in the specification and its query column.
func (j *Job) SetType(t JobType) {
	j.Specification.Type = t
	j.Type = t
}

// Completed reports whether all phases are done.
func (j *Job) Completed() bool {
	return j.State.AllDone()
}

// Abort marks the job failed with diags. The job keeps zero chunks, so every phase is trivially done.
func (j *Job) Abort(diags Diagnostics, now time.Time) {
	j.Diagnostics = append(j.Diagnostics, diags...)
	j.FatalError = true
	j.NumberOfChunks = 0
	j.NumberOfItems = 0
	j.State = NewState()
	j.State.Refresh(0, 0, now)
	j.TimeOfLastModification = now
	if j.TimeOfCompletion == nil {
		done := now
		j.TimeOfCompletion = &done
	}
}

// RecordChunk adds the outcome of one chunk to phase p.
// It sets TimeOfCompletion the first time every phase is done and reports whether that happened.
func (j *Job) RecordChunk(p Phase, counts ItemCounts, now time.Time) bool {
	j.State.Record(p, counts, j.NumberOfChunks, j.NumberOfItems, now)
	j.TimeOfLastModification = now
	if j.TimeOfCompletion == nil && j.State.AllDone() {
		done := now
		j.TimeOfCompletion = &done
		return true
	}
	return false
}

// SinkDestination returns the sink name the job delivers to.
func (j *Job) SinkDestination() (string, bool) {
	ref, ok := j.FlowStoreReferences.Get(SlotSink)
	if !ok {
		return "", false
	}
	return ref.Name, true
}

// JobListCriteria narrows a job query. Zero values do not filter.
type JobListCriteria struct {
	JobID           int64
	Types           []JobType
	SubmitterID     int64
	DataFile        string
	CreatedBefore   *time.Time
	CreatedAfter    *time.Time
	CompletedBefore *time.Time
	Completed       *bool
	FatalError      *bool
	Limit           int
	Offset          int
}
