// Package directory implements the yellow-page service: a category tree of
// topics, actor registrations per topic, a product supplier table, and the
// policy that answers YellowPageRequests.
package directory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateRegistration is returned when the same registration is made twice.
var ErrDuplicateRegistration = errors.New("duplicate registration")

// TopicTree is a category tree. A topic's parent is the one declared with
// Add, or else its slash-separated path prefix ("tools/hammer" -> "tools").
type TopicTree struct {
	parents map[string]string
}

// NewTopicTree creates an empty tree.
func NewTopicTree() *TopicTree {
	return &TopicTree{parents: make(map[string]string)}
}

// Add declares parent as the generalization of topic. An empty parent makes
// topic a root. Declarations that would create a cycle are rejected.
func (t *TopicTree) Add(topic, parent string) error {
	if topic == "" {
		return fmt.Errorf("topic tree: empty topic")
	}
	if _, exists := t.parents[topic]; exists {
		return fmt.Errorf("topic %q: %w", topic, ErrDuplicateRegistration)
	}
	if parent != "" && t.IsA(parent, topic) {
		return fmt.Errorf("topic %q under %q would create a cycle", topic, parent)
	}
	t.parents[topic] = parent
	return nil
}

// Parent returns the generalization of topic, or "" for a root.
func (t *TopicTree) Parent(topic string) string {
	if p, ok := t.parents[topic]; ok {
		return p
	}
	if i := strings.LastIndex(topic, "/"); i > 0 {
		return topic[:i]
	}
	return ""
}

// IsA reports whether topic equals ancestor or specializes it, walking the parent chain.
func (t *TopicTree) IsA(topic, ancestor string) bool {
	if ancestor == "" {
		return false
	}
	seen := make(map[string]bool)
	for cur := topic; cur != "" && !seen[cur]; cur = t.Parent(cur) {
		if cur == ancestor {
			return true
		}
		seen[cur] = true
	}
	return false
}

// Topics returns the declared topics, sorted.
func (t *TopicTree) Topics() []string {
	out := make([]string, 0, len(t.parents))
	for topic := range t.parents {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}
