// Package network declares the VPC of a deployment.
//
// It adds the VPC, one public subnet per availability zone with the routing
// needed to reach the internet, and the security group shared by the load
// balancer and the service tasks. Subnet CIDRs come from
// config.AllocateSubnets, so the same environment always yields the same
// layout.
package network
