package permission

import "strings"

// Fields is the subset of request fields the resource extractor inspects.
// The router populates it from the decoded request body before calling
// the permission engine.
type Fields struct {
	Bucket         string
	Query          string
	SubscriptionID string
	Topic          string
	Key            string
	Pattern        string
}

// ExtractResource derives the permission resource from the operation's
// namespace and the request fields relevant to it.
func ExtractResource(operation string, f Fields) string {
	switch {
	case strings.HasPrefix(operation, "store."):
		switch operation {
		case "store.subscribe":
			if f.Query != "" {
				return f.Query
			}
		case "store.unsubscribe":
			if f.SubscriptionID != "" {
				return f.SubscriptionID
			}
		default:
			if f.Bucket != "" {
				return f.Bucket
			}
		}
		return "*"

	case strings.HasPrefix(operation, "rules."):
		switch {
		case f.Topic != "":
			return f.Topic
		case f.Key != "":
			return f.Key
		case f.Pattern != "":
			return f.Pattern
		}
		return "*"

	default:
		return "*"
	}
}

// ResourceType returns the ACL resourceType namespace ("bucket", "topic",
// or "*") implied by an operation, used to look up ACL entries.
func ResourceType(operation string) string {
	switch {
	case strings.HasPrefix(operation, "store."):
		return "bucket"
	case strings.HasPrefix(operation, "rules."):
		return "topic"
	default:
		return "*"
	}
}
