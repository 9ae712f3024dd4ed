package templating

// Exported aliases for testing internal functions from
// the templating_test package.

// CallFuncForTest exposes callFunc.
var CallFuncForTest = callFunc

// SplitArgsForTest exposes splitArgs.
var SplitArgsForTest = splitArgs
