package rules

import "strings"

// topicMatches reports whether topic satisfies pattern using NATS-style
// dot-segment wildcards: "*" matches exactly one segment, ">" matches
// the remainder of the topic. One glob dialect for both in-process
// subscriptions and the optional NATS mirror.
func topicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(topic, ".")

	for i := 0; i < len(p); i++ {
		if p[i] == ">" {
			return i == len(p)-1
		}
		if i >= len(s) {
			return false
		}
		if p[i] != "*" && p[i] != s[i] {
			return false
		}
	}
	return len(s) == len(p)
}
