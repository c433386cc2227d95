package domain

import "time"

// List groups tasks. Exactly one list per dataset is normally the inbox;
// the inbox is never physically removed, though deleting it still records
// a tombstone.
type List struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Icon        string    `json:"icon"`
	Color       *string   `json:"color"`
	IsInbox     bool      `json:"is_inbox"`
	CreatedAt   time.Time `json:"created_at" validate:"required"`
	UpdatedAt   time.Time `json:"updated_at" validate:"required"`
	SortOrder   int       `json:"sort_order"`
}

// ModifiedAt implements Versioned.
func (l List) ModifiedAt() time.Time { return l.UpdatedAt }

// Kind implements Change.
func (List) Kind() ChangeKind { return KindList }

// RecordID implements Change.
func (l List) RecordID() string { return l.ID }

func (List) isChange() {}

// MergeInto returns stored overwritten with l's mutable fields.
// CreatedAt and IsInbox belong to the first writer and are kept.
func (l List) MergeInto(stored List) List {
	stored.Name = l.Name
	stored.Description = l.Description
	stored.Icon = l.Icon
	stored.Color = l.Color
	stored.SortOrder = l.SortOrder
	stored.UpdatedAt = l.UpdatedAt
	return stored
}
