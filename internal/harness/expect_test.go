package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mover/internal/vm"
)

func writeSidecar(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExpectationMissingIsSuccess(t *testing.T) {
	exp, err := LoadExpectation(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultExpectation(), exp)
}

func TestLoadExpectation(t *testing.T) {
	exp, err := LoadExpectation(writeSidecar(t, "expect: abort\nabort_code: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, ExpectAbort, exp.Expect)
	require.NotNil(t, exp.AbortCode)
	assert.Equal(t, uint64(2), *exp.AbortCode)

	exp, err = LoadExpectation(writeSidecar(t, "error_contains: boom\nexpect: error\n"))
	require.NoError(t, err)
	assert.Equal(t, "boom", exp.ErrorContains)
}

func TestLoadExpectationRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "expect: abort\ncode: 2\n", "field code not found"},
		{"unknown outcome", "expect: maybe\n", "expect must be success, abort or error"},
		{"code without abort", "abort_code: 2\n", "need expect: abort or error"},
		{"code on error", "expect: error\nabort_code: 2\n", "abort_code needs expect: abort"},
		{"not yaml", "expect: [\n", "parse expectation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadExpectation(writeSidecar(t, tt.content))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestExpectationCheck(t *testing.T) {
	code := uint64(3)
	gas := &vm.VMError{Status: vm.StatusOutOfGas, Message: "gas budget of 10 exhausted"}

	tests := []struct {
		name string
		exp  Expectation
		err  error
		want string
	}{
		{"success", Expectation{Expect: ExpectSuccess}, nil, ""},
		{"unexpected abort", Expectation{Expect: ExpectSuccess}, abort(3), "ABORTED with code 3 at script[0]"},
		{"any abort", Expectation{Expect: ExpectAbort}, abort(9), ""},
		{"abort code", Expectation{Expect: ExpectAbort, AbortCode: &code}, abort(3), ""},
		{"wrong code", Expectation{Expect: ExpectAbort, AbortCode: &code}, abort(4), "expected abort code 3, got 4"},
		{"abort but succeeded", Expectation{Expect: ExpectAbort}, nil, "expected abort, got success"},
		{"error", Expectation{Expect: ExpectError}, gas, ""},
		{"error contains", Expectation{Expect: ExpectError, ErrorContains: "OUT_OF_GAS"}, gas, ""},
		{"error text differs", Expectation{Expect: ExpectError, ErrorContains: "LINKER"}, gas,
			`expected failure containing "LINKER", got "OUT_OF_GAS: gas budget of 10 exhausted"`},
		{"error but aborted", Expectation{Expect: ExpectError}, abort(1), "expected error, got ABORTED with code 1 at script[0]"},
		{"plain error", Expectation{Expect: ExpectError}, errors.New("compile"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.exp.Check(tt.err))
		})
	}
}
