// Package ir provides the compiled representation shared by the compiler,
// verifier, virtual machine and data store.
//
// This package contains type definitions and their canonical encodings. All
// other internal packages import ir; ir imports only internal/account. This
// keeps IR the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - integers are u8, u64 or u128
//   - Bytecode and resource values are RFC 8785 canonical JSON
//   - All JSON tags use snake_case
//   - Write sets are always ordered by access path
package ir
