package harness

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mover/internal/execution"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/verifier"
	"github.com/roach88/mover/internal/vm"
)

// outcome is what the fake executor does for one file.
type outcome struct {
	compileErr error
	execErr    error
	ws         ir.WriteSet
	gas        uint64
}

type fakeExecutor struct {
	outcomes map[string]outcome
	executed []string
}

func (f *fakeExecutor) CompileScript(_ context.Context, path string) (*verifier.VerifiedScript, error) {
	if err := f.outcomes[path].compileErr; err != nil {
		return nil, err
	}
	f.executed = append(f.executed, path)
	return &verifier.VerifiedScript{}, nil
}

func (f *fakeExecutor) Execute(_ context.Context, _ *verifier.VerifiedScript, args []ir.Value, typeArgs []ir.Type) (*execution.Result, error) {
	path := f.executed[len(f.executed)-1]
	o := f.outcomes[path]
	if o.execErr != nil {
		return nil, o.execErr
	}
	return &execution.Result{TxnID: "txn", GasUsed: o.gas, WriteSet: o.ws}, nil
}

func abort(code uint64) error {
	return &vm.VMError{Status: vm.StatusAborted, Location: "script", AbortCode: code}
}

func sampleWriteSet(value string) ir.WriteSet {
	return ir.WriteSet{{
		Path:  "0x0000000000000000000000000000000a/resource/0xa::M::R",
		Kind:  ir.WriteKindSet,
		Value: []byte(value),
	}}
}

func TestRunReportGolden(t *testing.T) {
	exec := &fakeExecutor{outcomes: map[string]outcome{
		"t/pass.cue":   {gas: 12},
		"t/boom.cue":   {execErr: abort(7)},
		"t/broken.cue": {compileErr: errors.New("compile failed")},
	}}

	report, err := Run(context.Background(), exec, []string{"t/pass.cue", "t/boom.cue", "t/broken.cue"},
		Options{Golden: Golden{Dir: filepath.Join(t.TempDir(), "golden")}})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 2, report.Failed)
	assert.False(t, report.OK())

	data, err := json.MarshalIndent(report, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "report", append(data, '\n'))
}

func TestRunContinuesAfterFailures(t *testing.T) {
	outcomes := map[string]outcome{}
	var files []string
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		file := filepath.Join("t", name+".cue")
		files = append(files, file)
		if i%2 == 0 {
			outcomes[file] = outcome{execErr: abort(1)}
		} else {
			outcomes[file] = outcome{}
		}
	}

	report, err := Run(context.Background(), &fakeExecutor{outcomes: outcomes}, files, Options{})
	require.NoError(t, err)
	assert.Len(t, report.Cases, 5)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 2, report.Passed)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, &fakeExecutor{}, []string{"t/a.cue"}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Cases)
}

func TestRunHonoursSidecar(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "overdraw.cue")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overdraw.yaml"), []byte("expect: abort\nabort_code: 3\n"), 0o644))

	exec := &fakeExecutor{outcomes: map[string]outcome{file: {execErr: abort(3)}}}
	report, err := Run(context.Background(), exec, []string{file}, Options{})
	require.NoError(t, err)
	assert.True(t, report.OK())

	exec.outcomes[file] = outcome{execErr: abort(4)}
	report, err = Run(context.Background(), exec, []string{file}, Options{})
	require.NoError(t, err)
	require.Len(t, report.Cases, 1)
	assert.Equal(t, "expected abort code 3, got 4", report.Cases[0].Error)
}

func TestRunGoldenWriteSets(t *testing.T) {
	golden := Golden{Dir: filepath.Join(t.TempDir(), "golden")}
	exec := &fakeExecutor{outcomes: map[string]outcome{"t/mint.cue": {ws: sampleWriteSet(`{"v":1}`)}}}
	files := []string{"t/mint.cue"}

	// Without a golden file there is nothing to compare.
	report, err := Run(context.Background(), exec, files, Options{Golden: golden})
	require.NoError(t, err)
	assert.True(t, report.OK())

	update := golden
	update.Update = true
	report, err = Run(context.Background(), exec, files, Options{Golden: update})
	require.NoError(t, err)
	assert.True(t, report.OK())
	data, err := os.ReadFile(golden.Path("mint"))
	require.NoError(t, err)
	assert.Equal(t, sampleWriteSet(`{"v":1}`).Format(), string(data))

	exec.outcomes["t/mint.cue"] = outcome{ws: sampleWriteSet(`{"v":2}`)}
	report, err = Run(context.Background(), exec, files, Options{Golden: golden})
	require.NoError(t, err)
	require.False(t, report.OK())
	c := report.Cases[0]
	assert.Contains(t, c.Error, "write set does not match")
	assert.Contains(t, c.Diff, `-0x0000000000000000000000000000000a/resource/0xa::M::R: set {"v":1}`)
	assert.Contains(t, c.Diff, `+0x0000000000000000000000000000000a/resource/0xa::M::R: set {"v":2}`)
	assert.Contains(t, c.Diff, "--- golden/mint.golden")
	assert.Contains(t, c.Diff, "+++ actual")
}

func TestFilter(t *testing.T) {
	files := []string{"t/pay_ok.cue", "t/pay_fail.cue", "t/sub/create.cue"}

	got, err := Filter(files, "pay_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"t/pay_ok.cue", "t/pay_fail.cue"}, got)

	got, err = Filter(files, "")
	require.NoError(t, err)
	assert.Equal(t, files, got)

	got, err = Filter(files, "create")
	require.NoError(t, err)
	assert.Equal(t, []string{"t/sub/create.cue"}, got)

	_, err = Filter(files, "[")
	assert.ErrorContains(t, err, "invalid filter")
}
