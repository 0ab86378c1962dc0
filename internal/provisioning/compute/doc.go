// Package compute declares the container service of a deployment.
//
// BuildRoles adds the IAM roles the tasks run under. Build adds the ECS
// cluster, the Fargate task definition running the single "app" container,
// and the service that keeps the tier's desired number of tasks registered
// with the load balancer target group.
package compute
