// Package observability declares the service log group and the CPU alarm.
package observability

import (
	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/util/naming"
)

// Module is the graph module name of the observability nodes.
const Module = "observability"

// Alarm settings for sustained high CPU on the service.
const (
	CPUThreshold         = 75
	CPUPeriodSeconds     = 60
	CPUEvaluationPeriods = 2
)

// Inputs configures the observability module.
type Inputs struct {
	Project       string
	RetentionDays int
	ClusterName   graph.Ref
	ServiceName   graph.Ref
}

// Outputs exposes the observability refs.
type Outputs struct {
	LogGroupName graph.Ref
	AlarmARN     graph.Ref
}

// BuildLogGroup declares the log group. It is safe to call before Build so
// the task definition can reference the group; Build reuses it.
func BuildLogGroup(b *graph.Builder, project string, retentionDays int) (graph.Ref, error) {
	addr := graph.Addr(Module, "log_group")
	if n := b.Node(addr); n != nil {
		return n.Ref("LogGroupName"), nil
	}
	if retentionDays == 0 {
		retentionDays = config.DefaultRetentionDays
	}
	n, err := b.Module(Module).Add("log_group", provider.TypeLogGroup, graph.Attrs{
		"LogGroupName":    naming.LogGroup(project),
		"RetentionInDays": retentionDays,
	}, graph.WithForceNew("LogGroupName"))
	if err != nil {
		return graph.Ref{}, err
	}
	return n.Ref("LogGroupName"), nil
}

// Build declares the log group, if not yet declared, and the CPU alarm on
// the service.
func Build(b *graph.Builder, in Inputs) (Outputs, error) {
	logGroup, err := BuildLogGroup(b, in.Project, in.RetentionDays)
	if err != nil {
		return Outputs{}, err
	}
	m := b.Module(Module)
	if err := m.RequireRef("cpu_alarm", "cluster_name", in.ClusterName); err != nil {
		return Outputs{}, err
	}
	if err := m.RequireRef("cpu_alarm", "service_name", in.ServiceName); err != nil {
		return Outputs{}, err
	}

	alarm, err := m.Add("cpu_alarm", provider.TypeAlarm, graph.Attrs{
		"AlarmName":          naming.CPUAlarm(in.Project),
		"AlarmDescription":   "Service CPU above 75% for two consecutive minutes",
		"Namespace":          "AWS/ECS",
		"MetricName":         "CPUUtilization",
		"Statistic":          "Average",
		"Period":             CPUPeriodSeconds,
		"EvaluationPeriods":  CPUEvaluationPeriods,
		"Threshold":          CPUThreshold,
		"ComparisonOperator": "GreaterThanThreshold",
		"Dimensions": []any{
			map[string]any{"Name": "ClusterName", "Value": in.ClusterName},
			map[string]any{"Name": "ServiceName", "Value": in.ServiceName},
		},
	}, graph.WithForceNew("AlarmName"))
	if err != nil {
		return Outputs{}, err
	}
	return Outputs{LogGroupName: logGroup, AlarmARN: alarm.Ref("Arn")}, nil
}
