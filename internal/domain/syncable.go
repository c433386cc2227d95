package domain

import "time"

// Versioned is implemented by every record that takes part in delta sync.
// ModifiedAt is the instant compared against a device watermark.
type Versioned interface {
	ModifiedAt() time.Time
}

// Supersedes reports whether a record modified at incoming replaces one
// modified at stored. Equal timestamps keep the stored record.
func Supersedes(incoming, stored time.Time) bool {
	return incoming.After(stored)
}

// ModifiedSince reports whether v changed strictly after since.
// A nil since matches everything (full snapshot).
func ModifiedSince(v Versioned, since *time.Time) bool {
	if since == nil {
		return true
	}
	return v.ModifiedAt().After(*since)
}
