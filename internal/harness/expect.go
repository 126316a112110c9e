package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mover/internal/vm"
)

// Expected outcomes.
const (
	ExpectSuccess = "success"
	ExpectAbort   = "abort"
	ExpectError   = "error"
)

// Expectation is the contents of a test sidecar.
type Expectation struct {
	// Expect is success, abort or error. Defaults to success.
	Expect string `yaml:"expect"`

	// AbortCode, when set, is the code an abort must carry.
	AbortCode *uint64 `yaml:"abort_code,omitempty"`

	// ErrorContains, when set, must appear in the failure message.
	ErrorContains string `yaml:"error_contains,omitempty"`
}

// DefaultExpectation expects success.
func DefaultExpectation() *Expectation {
	return &Expectation{Expect: ExpectSuccess}
}

// LoadExpectation reads the sidecar at path. A missing sidecar yields
// DefaultExpectation. Unknown keys are rejected.
func LoadExpectation(path string) (*Expectation, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultExpectation(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read expectation: %w", err)
	}

	var exp Expectation
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&exp); err != nil {
		return nil, fmt.Errorf("parse expectation %s: %w", path, err)
	}
	if exp.Expect == "" {
		exp.Expect = ExpectSuccess
	}
	if err := exp.validate(); err != nil {
		return nil, fmt.Errorf("invalid expectation %s: %w", path, err)
	}
	return &exp, nil
}

func (e *Expectation) validate() error {
	switch e.Expect {
	case ExpectSuccess:
		if e.AbortCode != nil || e.ErrorContains != "" {
			return errors.New("abort_code and error_contains need expect: abort or error")
		}
	case ExpectAbort:
	case ExpectError:
		if e.AbortCode != nil {
			return errors.New("abort_code needs expect: abort")
		}
	default:
		return fmt.Errorf("expect must be success, abort or error, got %q", e.Expect)
	}
	return nil
}

// Check compares an execution outcome against the expectation. err is nil
// on success. It returns a description of the mismatch, or "" on a match.
func (e *Expectation) Check(err error) string {
	code, aborted := vm.IsAbort(err)
	switch e.Expect {
	case ExpectSuccess:
		if err != nil {
			return err.Error()
		}
		return ""
	case ExpectAbort:
		if !aborted {
			return fmt.Sprintf("expected abort, got %s", describe(err))
		}
		if e.AbortCode != nil && code != *e.AbortCode {
			return fmt.Sprintf("expected abort code %d, got %d", *e.AbortCode, code)
		}
	case ExpectError:
		if err == nil || aborted {
			return fmt.Sprintf("expected error, got %s", describe(err))
		}
	}
	if e.ErrorContains != "" && !strings.Contains(err.Error(), e.ErrorContains) {
		return fmt.Sprintf("expected failure containing %q, got %q", e.ErrorContains, err.Error())
	}
	return ""
}

func describe(err error) string {
	if err == nil {
		return "success"
	}
	return err.Error()
}
