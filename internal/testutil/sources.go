package testutil

// Counter is a module holding one u64 per account.
const Counter = `module: {
	name: "Counter"
	resources: Count: fields: {n: "u64"}
	functions: {
		init: {public: true, body: [
			{op: "move_to", resource: "Count", fields: {n: 0}},
		]}
		bump: {public: true, params: [{name: "by", type: "u64"}], body: [
			{op: "assert", cond: {exists: "Count"}, code: 1},
			{op: "update", resource: "Count", fields: {n: {add: [{field: "Count.n"}, "$by"]}}},
		]}
	}
}
`

// Tally uses Counter, so it must compile after it.
const Tally = `module: {
	name: "Tally"
	uses: ["Counter"]
	functions: {
		start: {public: true, body: [
			{op: "call", function: "Counter::init"},
			{op: "call", function: "Counter::bump", args: [1]},
		]}
	}
}
`

// BumpScript initializes the sender's counter and bumps it by an argument.
const BumpScript = `script: {
	uses: ["Counter"]
	params: [{name: "by", type: "u64"}]
	body: [
		{op: "call", function: "Counter::init"},
		{op: "call", function: "Counter::bump", args: ["$by"]},
	]
}
`

// PassingTest asserts arithmetic that holds.
const PassingTest = `script: {
	uses: ["0x1::Debug"]
	body: [{op: "call", function: "Debug::assert_eq", type_args: ["u64"], args: [{add: [2, 2]}, 4]}]
}
`

// FailingTest aborts with code 100.
const FailingTest = `script: {
	uses: ["0x1::Debug"]
	body: [{op: "call", function: "Debug::assert_eq", type_args: ["u64"], args: [1, 2]}]
}
`
