package domain

import (
	"database/sql/driver"
	"strings"
)

// JobType drives retention of a job.
type JobType string

const (
	JobTypeTransient      JobType = "TRANSIENT"
	JobTypeSuperTransient JobType = "SUPER_TRANSIENT"
	JobTypePersistent     JobType = "PERSISTENT"
	JobTypePeriodic       JobType = "PERIODIC"
	JobTypeAccTest        JobType = "ACCTEST"
	JobTypeTest           JobType = "TEST"
	JobTypeCompacted      JobType = "COMPACTED"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeTransient, JobTypeSuperTransient, JobTypePersistent, JobTypePeriodic,
		JobTypeAccTest, JobTypeTest, JobTypeCompacted:
		return true
	}
	return false
}

// EmptyJobDataFile is the data file URN reserved for jobs without data.
const EmptyJobDataFile = "urn:dataio-fs:empty-job"

// Ancestry links a job to an earlier job or harvester run.
type Ancestry struct {
	Transfile      string `json:"transfile,omitempty"`
	Datafile       string `json:"datafile,omitempty"`
	BatchID        string `json:"batchId,omitempty"`
	PreviousJobID  int64  `json:"previousJobId,omitempty"`
	HarvesterToken string `json:"harvesterToken,omitempty"`
	Details        string `json:"details,omitempty"`
}

// JobSpecification describes what a job is and where its data goes.
type JobSpecification struct {
	Packaging                            string    `json:"packaging"`
	Format                               string    `json:"format"`
	Charset                              string    `json:"charset"`
	Destination                          string    `json:"destination"`
	SubmitterID                          int64     `json:"submitterId"`
	MailForNotificationAboutVerification string    `json:"mailForNotificationAboutVerification,omitempty"`
	MailForNotificationAboutProcessing   string    `json:"mailForNotificationAboutProcessing,omitempty"`
	ResultMailInitials                   string    `json:"resultMailInitials,omitempty"`
	DataFile                             string    `json:"dataFile"`
	Type                                 JobType   `json:"type"`
	Ancestry                             *Ancestry `json:"ancestry,omitempty"`
}

// Normalize trims routing fields and lower-cases the packaging.
func (s *JobSpecification) Normalize() {
	s.Packaging = strings.ToLower(strings.TrimSpace(s.Packaging))
	s.Format = strings.TrimSpace(s.Format)
	s.Charset = strings.ToLower(strings.TrimSpace(s.Charset))
	s.Destination = strings.TrimSpace(s.Destination)
	s.DataFile = strings.TrimSpace(s.DataFile)
	s.Type = JobType(strings.ToUpper(strings.TrimSpace(string(s.Type))))
}

// Validate checks the fields every job needs.
func (s *JobSpecification) Validate() error {
	var missing []string
	if s.Packaging == "" {
		missing = append(missing, "packaging")
	}
	if s.Format == "" {
		missing = append(missing, "format")
	}
	if s.Charset == "" {
		missing = append(missing, "charset")
	}
	if s.Destination == "" {
		missing = append(missing, "destination")
	}
	if s.DataFile == "" {
		missing = append(missing, "dataFile")
	}
	if len(missing) > 0 {
		return NewValidationError(CodeInvalidJobSpecification, "missing required fields: %s", strings.Join(missing, ", "))
	}
	if s.SubmitterID <= 0 {
		return NewValidationError(CodeInvalidJobSpecification, "submitterId must be positive, got %d", s.SubmitterID)
	}
	if !s.Type.Valid() || s.Type == JobTypeCompacted {
		return NewValidationError(CodeInvalidJobSpecification, "illegal job type %q", s.Type)
	}
	return nil
}

// HasTransfile reports whether the job must preserve submission order.
func (s JobSpecification) HasTransfile() bool {
	return s.Ancestry != nil && s.Ancestry.Transfile != ""
}

// Value implements the driver.Valuer interface.
func (s JobSpecification) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan implements the sql.Scanner interface.
func (s *JobSpecification) Scan(value interface{}) error {
	return scanJSON(value, s, "JobSpecification")
}
