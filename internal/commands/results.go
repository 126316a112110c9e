package commands

import (
	"github.com/roach88/mover/internal/harness"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/verifier"
)

// Unit describes one compiled module or script.
type Unit struct {
	Kind   string `json:"kind"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
	Hash   string `json:"hash"`
}

func moduleUnit(source string, m *verifier.VerifiedModule) Unit {
	return Unit{Kind: ir.KindModule, Name: m.ID().String(), Source: source, Hash: m.Hash()}
}

func scriptUnit(source string, s *verifier.VerifiedScript) Unit {
	return Unit{Kind: ir.KindScript, Source: source, Hash: s.Hash()}
}

// NewResult describes a created project.
type NewResult struct {
	Name    string `json:"name"`
	Home    string `json:"home"`
	Address string `json:"address"`
	Genesis string `json:"genesis,omitempty"`
}

// BuildResult lists what a build compiled, in compile order.
type BuildResult struct {
	Modules []Unit `json:"modules"`
	Scripts []Unit `json:"scripts"`
}

// CompileResult describes the compiled file.
type CompileResult struct {
	Unit Unit `json:"unit"`
}

// RunResult is a successful execution.
type RunResult struct {
	TxnID        string      `json:"txn_id"`
	GasUsed      uint64      `json:"gas_used"`
	WriteSet     ir.WriteSet `json:"write_set"`
	GenesisSaved bool        `json:"genesis_saved,omitempty"`
}

// TestResult is the per-file outcome of a test run.
type TestResult struct {
	*harness.Report
}
