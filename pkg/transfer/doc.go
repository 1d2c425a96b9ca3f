// Package transfer describes the units of work executed by repository connectors.
//
// A Transfer moves one artifact or one metadata file, either up to or down from a remote repository.
// Transfers are built by callers, handed over to a connector which drives them through
// the New, Active, Done or Failed states, then read back once the batch call returns.
//
// Listeners observe the lifecycle of every transfer:
//
//	initiated -> started -> progressed* -> corrupted? -> succeeded | failed
package transfer
