package inventory

import (
	"fmt"
	"strings"
)

// ARN is a parsed Amazon Resource Name.
type ARN struct {
	Partition string
	Service   string
	Region    string
	AccountID string
	Resource  string
}

// ParseARN splits arn:partition:service:region:account:resource.
func ParseARN(s string) (ARN, error) {
	if !strings.HasPrefix(s, "arn:") {
		return ARN{}, fmt.Errorf("not an ARN: %q", s)
	}
	parts := strings.SplitN(s, ":", 6)
	if len(parts) < 6 {
		return ARN{}, fmt.Errorf("malformed ARN: %q", s)
	}
	return ARN{
		Partition: parts[1],
		Service:   parts[2],
		Region:    parts[3],
		AccountID: parts[4],
		Resource:  parts[5],
	}, nil
}

// ResourceType maps an ARN to the platform's "service:resource" type
// naming, e.g. ec2:instance, s3:bucket, lambda:function.
func (a ARN) ResourceType() string {
	switch a.Service {
	case "s3":
		return "s3:bucket"
	case "elasticloadbalancing":
		return "elbv2:loadbalancer"
	}

	name := a.Resource
	if i := strings.IndexAny(name, "/:"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return a.Service
	}
	return a.Service + ":" + name
}

// ResourceID returns the trailing identifier of the resource part.
func (a ARN) ResourceID() string {
	if a.Service == "elasticloadbalancing" {
		// loadbalancer/app/<name>/<id>
		parts := strings.Split(a.Resource, "/")
		if len(parts) >= 3 {
			return parts[2]
		}
	}
	if i := strings.LastIndexAny(a.Resource, "/:"); i >= 0 {
		return a.Resource[i+1:]
	}
	return a.Resource
}

// ResourceTypeFromARN returns the resource type of arn, or "" when arn is
// not parseable.
func ResourceTypeFromARN(arn string) string {
	parsed, err := ParseARN(arn)
	if err != nil {
		return ""
	}
	return parsed.ResourceType()
}

// DiscoverTypes returns the distinct resource types of arns in first-seen
// order.
func DiscoverTypes(arns []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, arn := range arns {
		t := ResourceTypeFromARN(arn)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
