package provider

// Schema describes the computed side of a resource type.
type Schema struct {
	// Identifier is the property that names the resource. When it is part of
	// the declared inputs the resource can be adopted instead of duplicated.
	Identifier string
	// Computed lists read-only properties available for references.
	Computed []string
}

// AWS resource types provisioned through the Cloud Control API.
const (
	TypeVPC               = "AWS::EC2::VPC"
	TypeInternetGateway   = "AWS::EC2::InternetGateway"
	TypeGatewayAttachment = "AWS::EC2::VPCGatewayAttachment"
	TypeRouteTable        = "AWS::EC2::RouteTable"
	TypeRoute             = "AWS::EC2::Route"
	TypeSubnet            = "AWS::EC2::Subnet"
	TypeSubnetRouteAssoc  = "AWS::EC2::SubnetRouteTableAssociation"
	TypeSecurityGroup     = "AWS::EC2::SecurityGroup"
	TypeRepository        = "AWS::ECR::Repository"
	TypeRole              = "AWS::IAM::Role"
	TypeCluster           = "AWS::ECS::Cluster"
	TypeTaskDefinition    = "AWS::ECS::TaskDefinition"
	TypeService           = "AWS::ECS::Service"
	TypeLoadBalancer      = "AWS::ElasticLoadBalancingV2::LoadBalancer"
	TypeTargetGroup       = "AWS::ElasticLoadBalancingV2::TargetGroup"
	TypeListener          = "AWS::ElasticLoadBalancingV2::Listener"
	TypeLogGroup          = "AWS::Logs::LogGroup"
	TypeAlarm             = "AWS::CloudWatch::Alarm"
)

var schemas = map[string]Schema{
	TypeVPC:               {Identifier: "VpcId", Computed: []string{"VpcId", "DefaultSecurityGroup"}},
	TypeInternetGateway:   {Identifier: "InternetGatewayId", Computed: []string{"InternetGatewayId"}},
	TypeGatewayAttachment: {},
	TypeRouteTable:        {Identifier: "RouteTableId", Computed: []string{"RouteTableId"}},
	TypeRoute:             {},
	TypeSubnet:            {Identifier: "SubnetId", Computed: []string{"SubnetId"}},
	TypeSubnetRouteAssoc:  {Identifier: "Id", Computed: []string{"Id"}},
	TypeSecurityGroup:     {Identifier: "GroupId", Computed: []string{"GroupId"}},
	TypeRepository:        {Identifier: "RepositoryName", Computed: []string{"Arn", "RepositoryUri"}},
	TypeRole:              {Identifier: "RoleName", Computed: []string{"Arn", "RoleId"}},
	TypeCluster:           {Identifier: "ClusterName", Computed: []string{"Arn"}},
	TypeTaskDefinition:    {Identifier: "TaskDefinitionArn", Computed: []string{"TaskDefinitionArn"}},
	TypeService:           {Identifier: "ServiceArn", Computed: []string{"ServiceArn", "Name"}},
	TypeLoadBalancer: {Identifier: "LoadBalancerArn", Computed: []string{
		"LoadBalancerArn", "DNSName", "CanonicalHostedZoneID", "LoadBalancerFullName",
	}},
	TypeTargetGroup: {Identifier: "TargetGroupArn", Computed: []string{"TargetGroupArn", "TargetGroupFullName"}},
	TypeListener:    {Identifier: "ListenerArn", Computed: []string{"ListenerArn"}},
	TypeLogGroup:    {Identifier: "LogGroupName", Computed: []string{"Arn"}},
	TypeAlarm:       {Identifier: "AlarmName", Computed: []string{"Arn"}},
}

// SchemaFor returns the schema registered for resourceType.
func SchemaFor(resourceType string) (Schema, bool) {
	s, ok := schemas[resourceType]
	return s, ok
}
