package domain

import "fmt"

// Priority ranks a task. The zero value is treated as PriorityMedium.
type Priority string

// Task priorities, lowest first.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// OrDefault returns PriorityMedium for the zero value and p otherwise.
func (p Priority) OrDefault() Priority {
	if p == "" {
		return PriorityMedium
	}
	return p
}

// UnmarshalText rejects unknown priorities.
func (p *Priority) UnmarshalText(text []byte) error {
	v := Priority(text)
	if !v.Valid() {
		return fmt.Errorf("unknown priority %q", string(text))
	}
	*p = v
	return nil
}

// RecordType names the kind of record a tombstone refers to.
type RecordType string

// Record types carried by tombstones.
const (
	RecordTask    RecordType = "task"
	RecordList    RecordType = "list"
	RecordTag     RecordType = "tag"
	RecordTaskTag RecordType = "task_tag"
)

// Valid reports whether r is one of the known record types.
func (r RecordType) Valid() bool {
	switch r {
	case RecordTask, RecordList, RecordTag, RecordTaskTag:
		return true
	}
	return false
}

// UnmarshalText rejects unknown record types.
func (r *RecordType) UnmarshalText(text []byte) error {
	v := RecordType(text)
	if !v.Valid() {
		return fmt.Errorf("unknown record type %q", string(text))
	}
	*r = v
	return nil
}
