// Package provisioning holds what the resource modules share: the build
// Context, the Phase interface and the Pipeline that runs phases in order.
//
// # Subpackages
//
//   - network/: VPC, routing, subnets, security group
//   - registry/: container image repository
//   - loadbalancer/: application load balancer, target group, HTTP redirect
//   - certificate/: ACM certificate DNS validation workflow, HTTPS listener
//   - compute/: ECS cluster, task definition, service, IAM roles
//   - observability/: log group and CPU alarm
//
// Each phase declares nodes on Context.Builder; nothing is applied here.
package provisioning
