package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
)

func moduleHeader(file, name string, uses ...string) UnitHeader {
	h := &Header{Kind: ir.KindModule, Self: ir.ModuleID{Address: dev, Name: name}}
	for _, u := range uses {
		id, err := ir.ParseModuleID(u, dev)
		if err != nil {
			panic(err)
		}
		h.Uses = append(h.Uses, id)
	}
	return UnitHeader{File: file, Header: h}
}

func TestAnalyzeDependencies_Empty(t *testing.T) {
	warnings := AnalyzeDependencies(nil)
	require.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

func TestAnalyzeDependencies_WalkOrderSatisfied(t *testing.T) {
	warnings := AnalyzeDependencies([]UnitHeader{
		moduleHeader("a.cue", "A"),
		moduleHeader("b.cue", "B", "A"),
		moduleHeader("c.cue", "C", "A", "B"),
	})
	assert.Empty(t, warnings)
}

func TestAnalyzeDependencies_ForwardReference(t *testing.T) {
	warnings := AnalyzeDependencies([]UnitHeader{
		moduleHeader("a.cue", "A", "B"),
		moduleHeader("b.cue", "B"),
	})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"0xd::A", "0xd::B"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "a.cue")
	assert.Contains(t, warnings[0].Message, "b.cue")
	assert.Contains(t, warnings[0].Message, "compiles later")
	assert.Equal(t, "warning", warnings[0].Level)
}

func TestAnalyzeDependencies_TwoModuleCycle(t *testing.T) {
	warnings := AnalyzeDependencies([]UnitHeader{
		moduleHeader("a.cue", "A", "B"),
		moduleHeader("b.cue", "B", "A"),
	})

	// The cycle edges are not reported again as forward references.
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"0xd::A", "0xd::B", "0xd::A"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "dependency cycle")
}

func TestAnalyzeDependencies_SelfUse(t *testing.T) {
	warnings := AnalyzeDependencies([]UnitHeader{moduleHeader("a.cue", "A", "A")})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"0xd::A", "0xd::A"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "uses itself")
}

func TestAnalyzeDependencies_IgnoresScriptsAndOutsideModules(t *testing.T) {
	script := UnitHeader{File: "s.cue", Header: &Header{
		Kind: ir.KindScript,
		Uses: []ir.ModuleID{{Address: dev, Name: "B"}},
	}}
	stdlib := ir.ModuleID{Address: account.CoreAddress, Name: "Account"}
	a := moduleHeader("a.cue", "A")
	a.Header.Uses = append(a.Header.Uses, stdlib)

	warnings := AnalyzeDependencies([]UnitHeader{
		script,
		{File: "broken.cue"},
		a,
		moduleHeader("b.cue", "B", "A"),
	})
	assert.Empty(t, warnings)
}

func TestAnalyzeDependencies_Deterministic(t *testing.T) {
	units := []UnitHeader{
		moduleHeader("a.cue", "A", "C"),
		moduleHeader("b.cue", "B", "A"),
		moduleHeader("c.cue", "C", "B"),
		moduleHeader("d.cue", "D", "E"),
		moduleHeader("e.cue", "E"),
	}
	first := AnalyzeDependencies(units)
	for range 5 {
		assert.Equal(t, first, AnalyzeDependencies(units))
	}
	require.Len(t, first, 2)
	assert.Equal(t, []string{"0xd::A", "0xd::C", "0xd::B", "0xd::A"}, first[0].Path)
	assert.Equal(t, []string{"0xd::D", "0xd::E"}, first[1].Path)
}
