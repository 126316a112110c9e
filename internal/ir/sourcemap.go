package ir

import (
	"encoding/json"
	"fmt"
)

// Position is a line/column pair in a source file (1-based).
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// FunctionMap records where each instruction of a function body starts.
type FunctionMap struct {
	Name         string     `json:"name"`
	Position     Position   `json:"position"`
	Instructions []Position `json:"instructions"`
}

// SourceMap maps compiled instructions back to source positions. Scripts
// use a single FunctionMap named "main".
type SourceMap struct {
	Unit      string        `json:"unit"`
	File      string        `json:"file"`
	Functions []FunctionMap `json:"functions"`
}

// Marshal renders the source map as indented JSON.
func (m *SourceMap) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal source map: %w", err)
	}
	return append(data, '\n'), nil
}

// Lookup returns the position of instruction offset in function fn.
func (m *SourceMap) Lookup(fn string, offset int) (Position, bool) {
	for _, f := range m.Functions {
		if f.Name != fn {
			continue
		}
		if offset < 0 || offset >= len(f.Instructions) {
			return Position{}, false
		}
		return f.Instructions[offset], true
	}
	return Position{}, false
}
