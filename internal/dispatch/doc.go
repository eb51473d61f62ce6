// Package dispatch turns the asynchronous device protocol into a
// synchronous request/response API.
//
// The Correlator pairs outbound commands with inbound replies through
// generated request IDs. The Dispatcher is the facade web handlers call:
// it validates the target, sends over whatever transport the locker is
// using, and blocks until the reply arrives or the per-command timeout
// fires. Every outcome is a value; a timed-out or failed command is a
// normal Result, not an error to panic over.
package dispatch
