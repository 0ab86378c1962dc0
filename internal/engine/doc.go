// Package engine plans and applies a resource graph against a provider.
//
// Planning compares each node's declared attributes with the recorded state
// and yields create, update, replace, delete or no-op changes. Applying runs
// one goroutine per node: a node starts once every dependency has completed,
// at most Parallelism provider calls run at once, and state is saved after
// every node so an interrupted run can resume. Destroy walks the recorded
// resources in reverse dependency order.
package engine
