package ir

// Version constants for the bytecode format and toolchain.
const (
	// BytecodeVersion is stamped into every serialized module and script.
	BytecodeVersion = 1

	// ToolchainVersion is the mover toolchain version.
	ToolchainVersion = "0.1.0"
)
