// Package harness runs a project's test scripts.
//
// Each file under the test directory is compiled and executed on its own,
// with no arguments, against the same store. Write sets are never applied,
// so files cannot see each other's effects. A failure is recorded for that
// file and the batch continues.
//
// # Expectations
//
// By default a test passes when its script executes successfully. A sidecar
// next to the script, named <stem>.yaml, can expect something else:
//
//	expect: abort
//	abort_code: 3
//
//	expect: error
//	error_contains: OUT_OF_GAS
//
// # Golden write sets
//
// When <test_dir>/golden/<stem>.golden exists, a successful execution's
// write set must match it exactly; a mismatch fails the test with a unified
// diff. Running with Update rewrites the golden files from the current
// write sets.
package harness
