// Package dynamodb provides the lock table client used to serialise runs
// against one remote state.
//
// A lock is a single item keyed by LockID. It is written with a conditional
// put so that only one run can hold it.
package dynamodb
