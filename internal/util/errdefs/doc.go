// Package errdefs defines the error taxonomy shared by graph construction,
// planning, applying and the certificate workflow.
//
// Every error type supports errors.As and carries enough context (node
// address, attempted operation) for an operator to diagnose a failed run
// without looking at provider-side logs.
package errdefs
