package compute

import (
	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/naming"
)

// Module is the graph module name of the compute nodes.
const Module = "compute"

// ContainerName is the name of the only container in the task.
const ContainerName = "app"

// Task size of every tier.
const (
	TaskCPU    = "256"
	TaskMemory = "512"
)

// Inputs configures the compute module.
type Inputs struct {
	Project     string
	ClusterName string
	Tier        config.Tier
	Region      string

	ExecutionRoleARN graph.Ref
	TaskRoleARN      graph.Ref

	// Image is the full image reference. When empty the task runs the
	// latest image of ImageRepository.
	Image           string
	ImageRepository graph.Ref
	ContainerPort   int

	SubnetIDs        []graph.Ref
	SecurityGroupIDs []graph.Ref
	TargetGroupARN   graph.Ref
	// LogGroup enables the awslogs driver when set.
	LogGroup graph.Ref
	// After lists nodes the service must wait for, such as the listener
	// that attaches the target group to the load balancer.
	After []graph.Address
}

// Outputs exposes the refs consumed by observability and the stack outputs.
type Outputs struct {
	ClusterName graph.Ref
	ClusterARN  graph.Ref
	ServiceName graph.Ref
	ServiceARN  graph.Ref
}

// Build declares the cluster, task definition and service.
func Build(b *graph.Builder, in Inputs) (Outputs, error) {
	desired, err := in.Tier.DesiredCount()
	if err != nil {
		return Outputs{}, err
	}
	m := b.Module(Module)
	if err := m.RequireRef("task_definition", "execution_role_arn", in.ExecutionRoleARN); err != nil {
		return Outputs{}, err
	}
	if err := m.RequireRef("service", "target_group_arn", in.TargetGroupARN); err != nil {
		return Outputs{}, err
	}
	if len(in.SubnetIDs) == 0 {
		return Outputs{}, errdefs.Configf("compute.subnets", "at least one subnet is required")
	}
	var image any = in.Image
	if in.Image == "" {
		if err := m.RequireRef("task_definition", "image_repository", in.ImageRepository); err != nil {
			return Outputs{}, err
		}
		image = in.ImageRepository
	}
	port := in.ContainerPort
	if port == 0 {
		port = config.DefaultContainerPort
	}
	clusterName := in.ClusterName
	if clusterName == "" {
		clusterName = naming.Cluster(in.Project)
	}

	cluster, err := m.Add("cluster", provider.TypeCluster, graph.Attrs{
		"ClusterName": clusterName,
	}, graph.WithForceNew("ClusterName"))
	if err != nil {
		return Outputs{}, err
	}

	taskAttrs := graph.Attrs{
		"Family":                  naming.TaskFamily(in.Project),
		"Cpu":                     TaskCPU,
		"Memory":                  TaskMemory,
		"NetworkMode":             "awsvpc",
		"RequiresCompatibilities": []any{"FARGATE"},
		"ExecutionRoleArn":        in.ExecutionRoleARN,
		"ContainerDefinitions":    []any{containerDefinition(in, image, port)},
	}
	if !in.TaskRoleARN.IsZero() {
		taskAttrs["TaskRoleArn"] = in.TaskRoleARN
	}
	// Task definition revisions are immutable; the service moves to the new
	// revision before the old one is deregistered.
	task, err := m.Add("task_definition", provider.TypeTaskDefinition, taskAttrs,
		graph.WithForceNew("Family", "Cpu", "Memory", "NetworkMode", "RequiresCompatibilities",
			"ExecutionRoleArn", "TaskRoleArn", "ContainerDefinitions"),
		graph.WithLifecycle(graph.Lifecycle{CreateBeforeDestroy: true}))
	if err != nil {
		return Outputs{}, err
	}

	service, err := m.Add("service", provider.TypeService, graph.Attrs{
		"ServiceName":    naming.Service(in.Project),
		"Cluster":        cluster.Ref("Arn"),
		"TaskDefinition": task.Ref("TaskDefinitionArn"),
		"DesiredCount":   desired,
		"LaunchType":     "FARGATE",
		"NetworkConfiguration": map[string]any{
			"AwsvpcConfiguration": map[string]any{
				"AssignPublicIp": "ENABLED",
				"Subnets":        graph.RefList(in.SubnetIDs),
				"SecurityGroups": graph.RefList(in.SecurityGroupIDs),
			},
		},
		"LoadBalancers": []any{map[string]any{
			"ContainerName":  ContainerName,
			"ContainerPort":  port,
			"TargetGroupArn": in.TargetGroupARN,
		}},
		"HealthCheckGracePeriodSeconds": 60,
	}, graph.WithForceNew("ServiceName", "Cluster", "LaunchType", "LoadBalancers"), graph.WithDependsOn(in.After...))
	if err != nil {
		return Outputs{}, err
	}

	return Outputs{
		ClusterName: cluster.Ref("ClusterName"),
		ClusterARN:  cluster.Ref("Arn"),
		ServiceName: service.Ref("Name"),
		ServiceARN:  service.Ref("ServiceArn"),
	}, nil
}

func containerDefinition(in Inputs, image any, port int) map[string]any {
	c := map[string]any{
		"Name":      ContainerName,
		"Image":     image,
		"Essential": true,
		"PortMappings": []any{map[string]any{
			"ContainerPort": port,
			"Protocol":      "tcp",
		}},
	}
	if !in.LogGroup.IsZero() {
		c["LogConfiguration"] = map[string]any{
			"LogDriver": "awslogs",
			"Options": map[string]any{
				"awslogs-group":         in.LogGroup,
				"awslogs-region":        in.Region,
				"awslogs-stream-prefix": ContainerName,
			},
		}
	}
	return c
}
