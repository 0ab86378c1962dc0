// Package naming provides consistent naming functions for AWS resources.
//
// Resource names follow the pattern {tier}-{project}-{type} so that the
// resources of one deployment tier are easy to identify in the console.
// Load balancer and target group names are shortened to the 32 character
// limit while keeping their type suffix.
package naming
