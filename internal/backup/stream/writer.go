// Package stream provides JSONL streaming to/from zip archives.
package stream

import (
	"archive/zip"
	"encoding/json"
	"io"
)

// Writer streams entities as JSONL to a zip archive.
type Writer struct {
	w     io.Writer
	enc   *json.Encoder
	count int
}

// NewWriter creates a JSONL writer for a path within the zip.
func NewWriter(zw *zip.Writer, path string) (*Writer, error) {
	w, err := zw.Create(path)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{w: w, enc: enc}, nil
}

// Write encodes a single entity as a JSON line.
func (w *Writer) Write(entity any) error {
	// Encode terminates each value with a newline.
	if err := w.enc.Encode(entity); err != nil {
		return err
	}
	w.count++
	return nil
}

// WriteRaw writes an already encoded JSON value as one line.
func (w *Writer) WriteRaw(line []byte) error {
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if _, err := w.w.Write([]byte{'\n'}); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns entities written so far.
func (w *Writer) Count() int {
	return w.count
}
