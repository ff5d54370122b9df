// Package iojson has helpers for JSON on CLI streams.
package iojson

import (
	"encoding/json"
	"io"
)

// WriteLine writes obj as one compact JSON line. The render stream and
// --json listings are newline-delimited, one object per line.
func WriteLine(w io.Writer, obj any) error {
	return json.NewEncoder(w).Encode(obj)
}

// Write writes obj indented, for human-facing single-object output.
func Write(w io.Writer, obj any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(obj)
}
