// Package handlers implements the stackforge commands.
//
// Each handler loads the environment, wires the AWS dependencies, and
// drives an orchestration.Stack. The factory variables in common.go are
// replaced in tests.
package handlers
