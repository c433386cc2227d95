package domain

import "time"

// Tag is a label that can be attached to any number of tasks.
// Tags are replaced wholesale on every upsert and never produce conflicts.
type Tag struct {
	ID        string     `json:"id" validate:"required"`
	Name      string     `json:"name"`
	Color     string     `json:"color"`
	CreatedAt time.Time  `json:"created_at" validate:"required"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ModifiedAt returns UpdatedAt when the client sent one, otherwise CreatedAt.
func (t Tag) ModifiedAt() time.Time {
	if t.UpdatedAt != nil {
		return *t.UpdatedAt
	}
	return t.CreatedAt
}

// Kind implements Change.
func (Tag) Kind() ChangeKind { return KindTag }

// RecordID implements Change.
func (t Tag) RecordID() string { return t.ID }

func (Tag) isChange() {}
