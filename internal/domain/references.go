package domain

import "database/sql/driver"

// ReferenceSlot names one resolved configuration entity of a job.
type ReferenceSlot string

const (
	SlotSubmitter  ReferenceSlot = "SUBMITTER"
	SlotFlowBinder ReferenceSlot = "FLOW_BINDER"
	SlotFlow       ReferenceSlot = "FLOW"
	SlotSink       ReferenceSlot = "SINK"
)

// FlowStoreReference identifies a versioned flow-store entity.
type FlowStoreReference struct {
	ID      int64  `json:"id"`
	Version int64  `json:"version"`
	Name    string `json:"name"`
}

// FlowStoreReferences holds the populated slots. Absent slots have no key.
type FlowStoreReferences map[ReferenceSlot]FlowStoreReference

// Get returns the reference in slot, if populated.
func (r FlowStoreReferences) Get(slot ReferenceSlot) (FlowStoreReference, bool) {
	ref, ok := r[slot]
	return ref, ok
}

// Value implements the driver.Valuer interface.
func (r FlowStoreReferences) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	return jsonValue(map[ReferenceSlot]FlowStoreReference(r))
}

// Scan implements the sql.Scanner interface.
func (r *FlowStoreReferences) Scan(value interface{}) error {
	*r = FlowStoreReferences{}
	return scanJSON(value, (*map[ReferenceSlot]FlowStoreReference)(r), "FlowStoreReferences")
}
