package naming

import (
	"fmt"
	"strings"
)

// Load balancers and target groups reject names longer than 32 characters.
const maxELBNameLength = 32

// Project returns the tier-qualified project name, e.g. "dev-tv-devops".
func Project(tier, base string) string {
	return fmt.Sprintf("%s-%s", tier, base)
}

// Subdomain returns the public host name for a tier, e.g. "dev.example.com".
func Subdomain(tier, domain string) string {
	return fmt.Sprintf("%s.%s", tier, domain)
}

func VPC(project string) string {
	return project + "-vpc"
}

func Subnet(project, az string) string {
	return fmt.Sprintf("%s-subnet-%s", project, az)
}

func SecurityGroup(project string) string {
	return project + "-sg"
}

func Repository(project string) string {
	return project + "-repo"
}

func Cluster(project string) string {
	return project + "-cluster"
}

func ExecutionRole(project string) string {
	return project + "-exec-role"
}

func TaskRole(project string) string {
	return project + "-task-role"
}

func TaskFamily(project string) string {
	return project + "-task"
}

func Service(project string) string {
	return project + "-service"
}

func LoadBalancer(project string) string {
	return elbName(project + "-lb")
}

func TargetGroup(project string) string {
	return elbName(project + "-tg")
}

func Certificate(project string) string {
	return project + "-cert"
}

func LogGroup(project string) string {
	return "/ecs/" + project
}

func CPUAlarm(project string) string {
	return project + "-high-cpu"
}

// StateKey is the object key holding the state of a tier.
func StateKey(tier string) string {
	return tier + "/state"
}

// elbName keeps the suffix and trims the project part so that the name fits
// the ELB length limit without ending in a hyphen.
func elbName(name string) string {
	if len(name) <= maxELBNameLength {
		return name
	}
	idx := strings.LastIndex(name, "-")
	suffix := name[idx:]
	prefix := strings.TrimRight(name[:maxELBNameLength-len(suffix)], "-")
	return prefix + suffix
}
