// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONWriter writes status lines as JSON objects, one per line, in the format waybar custom
// modules read. It is also a MapView: a recenter is attached to the next status line.
type JSONWriter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	pending *Recenter
}

// NewJSONWriter returns a JSONWriter writing to w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{encoder: json.NewEncoder(w)}
}

// SetView records a map movement for the next status line.
func (w *JSONWriter) SetView(lat, lon float64, zoom int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = &Recenter{Latitude: lat, Longitude: lon, Zoom: zoom}
}

// WriteStatus encodes the status line together with a pending map movement.
func (w *JSONWriter) WriteStatus(out Output) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		out.Recenter = w.pending
		w.pending = nil
	}
	if err := w.encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return nil
}
