package provisioning

import "sort"

// NameTag returns the CloudFormation-style tag list carrying a Name tag.
func NameTag(name string) []any {
	return Tags(map[string]string{"Name": name})
}

// Tags converts a tag map into a Key/Value list ordered by key.
func Tags(tags map[string]string) []any {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{"Key": k, "Value": tags[k]})
	}
	return out
}
