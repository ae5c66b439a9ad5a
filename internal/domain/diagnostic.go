package domain

import "database/sql/driver"

// DiagnosticLevel classifies a Diagnostic.
type DiagnosticLevel string

const (
	DiagnosticFatal   DiagnosticLevel = "FATAL"
	DiagnosticError   DiagnosticLevel = "ERROR"
	DiagnosticWarning DiagnosticLevel = "WARNING"
)

// Diagnostic is an operator-facing explanation attached to a job or an item.
type Diagnostic struct {
	Level   DiagnosticLevel `json:"level"`
	Message string          `json:"message"`
	Tag     string          `json:"tag,omitempty"`
}

// NewFatalDiagnostic builds a FATAL diagnostic.
func NewFatalDiagnostic(message string) Diagnostic {
	return Diagnostic{Level: DiagnosticFatal, Message: message}
}

// Diagnostics is a list of Diagnostic stored as a JSON column.
type Diagnostics []Diagnostic

// HasFatal reports whether any entry is FATAL.
func (d Diagnostics) HasFatal() bool {
	for _, diag := range d {
		if diag.Level == DiagnosticFatal {
			return true
		}
	}
	return false
}

// Value implements the driver.Valuer interface.
func (d Diagnostics) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	return jsonValue([]Diagnostic(d))
}

// Scan implements the sql.Scanner interface.
func (d *Diagnostics) Scan(value interface{}) error {
	*d = Diagnostics{}
	return scanJSON(value, (*[]Diagnostic)(d), "Diagnostics")
}
