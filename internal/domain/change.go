package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ChangeKind is the "type" discriminator of a change on the wire.
type ChangeKind string

// Change kinds.
const (
	KindList    ChangeKind = "list"
	KindTag     ChangeKind = "tag"
	KindTaskTag ChangeKind = "task_tag"
	KindTask    ChangeKind = "task"
	KindDeleted ChangeKind = "deleted"
)

// Change is one entry of a sync batch: a List, Tag, Task, TaskTagLink or
// Tombstone value. The set is closed; switch on the concrete type.
type Change interface {
	Kind() ChangeKind
	RecordID() string
	isChange()
}

// Changes is an ordered batch of changes with the tagged JSON encoding
// {"type": "<kind>", ...fields}.
type Changes []Change

// MarshalJSON encodes every change with its type tag.
func (cs Changes) MarshalJSON() ([]byte, error) {
	if cs == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, c := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalChange(c)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON array of tagged changes.
func (cs *Changes) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Changes, 0, len(raw))
	for i, r := range raw {
		c, err := UnmarshalChange(r)
		if err != nil {
			return fmt.Errorf("changes[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	*cs = out
	return nil
}

// MarshalChange encodes a single change with its "type" tag first.
func MarshalChange(c Change) ([]byte, error) {
	if c == nil {
		return nil, errors.New("nil change")
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("change %s did not encode as an object", c.Kind())
	}

	out := make([]byte, 0, len(body)+24)
	out = append(out, `{"type":`...)
	out = strconv.AppendQuote(out, string(c.Kind()))
	if len(body) > 2 {
		out = append(out, ',')
	}
	out = append(out, body[1:]...)
	return out, nil
}

// UnmarshalChange decodes a single tagged change.
func UnmarshalChange(data []byte) (Change, error) {
	var head struct {
		Type ChangeKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case KindList:
		var v List
		err := json.Unmarshal(data, &v)
		return v, err
	case KindTag:
		var v Tag
		err := json.Unmarshal(data, &v)
		return v, err
	case KindTaskTag:
		var v TaskTagLink
		err := json.Unmarshal(data, &v)
		return v, err
	case KindTask:
		var v Task
		err := json.Unmarshal(data, &v)
		return v, err
	case KindDeleted:
		var v Tombstone
		err := json.Unmarshal(data, &v)
		return v, err
	case "":
		return nil, errors.New("missing change type")
	default:
		return nil, fmt.Errorf("unknown change type %q", head.Type)
	}
}

// CanonicalID lowercases and hyphenates ids that parse as UUIDs so that
// clients formatting the same UUID differently address the same record.
// Anything else is returned unchanged.
func CanonicalID(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return u.String()
}

// Canonicalize returns c with every identifier passed through CanonicalID
// and every timestamp converted to UTC.
func Canonicalize(c Change) Change {
	switch v := c.(type) {
	case List:
		v.ID = CanonicalID(v.ID)
		v.CreatedAt = v.CreatedAt.UTC()
		v.UpdatedAt = v.UpdatedAt.UTC()
		return v
	case Tag:
		v.ID = CanonicalID(v.ID)
		v.CreatedAt = v.CreatedAt.UTC()
		v.UpdatedAt = utcPtr(v.UpdatedAt)
		return v
	case TaskTagLink:
		v.TaskID = CanonicalID(v.TaskID)
		v.TagID = CanonicalID(v.TagID)
		v.CreatedAt = v.CreatedAt.UTC()
		return v
	case Task:
		v.ID = CanonicalID(v.ID)
		v.ListID = CanonicalID(v.ListID)
		if v.TagIDs != nil {
			ids := make([]string, len(v.TagIDs))
			for i, id := range v.TagIDs {
				ids[i] = CanonicalID(id)
			}
			v.TagIDs = ids
		}
		v.Priority = v.Priority.OrDefault()
		v.CreatedAt = v.CreatedAt.UTC()
		v.UpdatedAt = v.UpdatedAt.UTC()
		v.CompletedAt = utcPtr(v.CompletedAt)
		v.DueDate = utcPtr(v.DueDate)
		return v
	case Tombstone:
		v.ID = CanonicalID(v.ID)
		v.DeletedAt = v.DeletedAt.UTC()
		return v
	default:
		return c
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
