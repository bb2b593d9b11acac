package opengl

import (
	"bytes"
	"testing"
)

func TestFlipRows(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		rows int
		want []byte
	}{
		{"three rows", []byte{1, 1, 2, 2, 3, 3}, 3, []byte{3, 3, 2, 2, 1, 1}},
		{"two rows", []byte{1, 2, 3, 4}, 2, []byte{3, 4, 1, 2}},
		{"one row", []byte{1, 2}, 1, []byte{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Clone(tt.in)
			flipRows(data, tt.rows, len(data)/tt.rows)
			if !bytes.Equal(data, tt.want) {
				t.Errorf("flipRows = %v, want %v", data, tt.want)
			}
		})
	}
}
