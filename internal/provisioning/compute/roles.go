package compute

import (
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/util/naming"
)

// ExecutionPolicyARN is the managed policy that lets ECS pull images and
// write logs on behalf of a task.
const ExecutionPolicyARN = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"

// Roles exposes the role ARNs consumed by the task definition.
type Roles struct {
	ExecutionRoleARN graph.Ref
	TaskRoleARN      graph.Ref
}

// BuildRoles declares the task execution role and the task role.
func BuildRoles(b *graph.Builder, project string) (Roles, error) {
	m := b.Module(Module)
	exec, err := m.Add("execution_role", provider.TypeRole, graph.Attrs{
		"RoleName":                 naming.ExecutionRole(project),
		"AssumeRolePolicyDocument": ecsTasksTrustPolicy(),
		"ManagedPolicyArns":        []any{ExecutionPolicyARN},
	}, graph.WithForceNew("RoleName"))
	if err != nil {
		return Roles{}, err
	}
	task, err := m.Add("task_role", provider.TypeRole, graph.Attrs{
		"RoleName":                 naming.TaskRole(project),
		"AssumeRolePolicyDocument": ecsTasksTrustPolicy(),
	}, graph.WithForceNew("RoleName"))
	if err != nil {
		return Roles{}, err
	}
	return Roles{ExecutionRoleARN: exec.Ref("Arn"), TaskRoleARN: task.Ref("Arn")}, nil
}

func ecsTasksTrustPolicy() map[string]any {
	return map[string]any{
		"Version": "2012-10-17",
		"Statement": []any{map[string]any{
			"Effect":    "Allow",
			"Principal": map[string]any{"Service": "ecs-tasks.amazonaws.com"},
			"Action":    "sts:AssumeRole",
		}},
	}
}
