// ABOUTME: Helpers that turn a fetched snapshot into the ordered message list
// ABOUTME: Messages are sorted by creation time, stable for equal timestamps

package conversation

import (
	"slices"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// sortMessages returns a copy of msgs ordered by CreatedAt ascending.
func sortMessages(msgs []supportapi.Message) []supportapi.Message {
	out := slices.Clone(msgs)
	if out == nil {
		return []supportapi.Message{}
	}
	slices.SortStableFunc(out, func(a, b supportapi.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt.Time)
	})
	return out
}

func agentMessageCount(msgs []supportapi.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Sender == supportapi.SenderAgent {
			n++
		}
	}
	return n
}
