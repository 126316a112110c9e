package harness

// Test outcome statuses.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// CaseResult is the outcome of one test file.
type CaseResult struct {
	File   string `json:"file"`
	Name   string `json:"name"`
	Status string `json:"status"`

	// GasUsed is set when execution succeeded.
	GasUsed uint64 `json:"gas_used,omitempty"`

	// Error is the failure message, including unexpected compile,
	// verification and execution errors.
	Error string `json:"error,omitempty"`

	// Diff is the golden write-set mismatch, if any.
	Diff string `json:"diff,omitempty"`
}

// Passed reports whether the case passed.
func (c CaseResult) Passed() bool {
	return c.Status == StatusPass
}

// Report is the outcome of a test run.
type Report struct {
	Cases  []CaseResult `json:"cases"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
}

// Add records a case.
func (r *Report) Add(c CaseResult) {
	r.Cases = append(r.Cases, c)
	if c.Passed() {
		r.Passed++
	} else {
		r.Failed++
	}
}

// OK reports whether every case passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}
