// Package orchestration coordinates a full stackforge run.
//
// The Stack resolves the DNS zone and the state lock, builds the resource
// graph by running the module phases in dependency order, and hands the
// plan to the engine.
//
// # Phases
//
//  1. Validation - preflight checks of the environment
//  2. Network - VPC, routing, subnets, security group
//  3. Registry - container image repository
//  4. Log group and IAM roles
//  5. Load balancer - ALB, target group, HTTP redirect
//  6. Certificate - DNS-validated certificate, HTTPS listener, alias record
//  7. Compute - ECS cluster, task definition, service
//  8. Observability - CPU alarm
//
// # Usage
//
//	stack := orchestration.New(env, deps)
//	result, err := stack.Apply(ctx)
//
// Every operation runs under the state lock; nothing is mutated outside it.
package orchestration
