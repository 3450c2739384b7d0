// Package history builds the conversation context passed to the router.
package history

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversational message.
type Turn struct {
	Role    string `json:"role" mapstructure:"role"`
	Content string `json:"content" mapstructure:"content"`
}

// History is an ordered, chronological list of turns. Callers own it; the
// router only reads it.
type History []Turn

// Normalize converts loosely typed input into a History. It accepts History,
// []Turn, a list of role/content maps or a single text blob, which becomes one
// user turn. Turns with roles other than user and assistant are dropped.
// Normalize never mutates its input and is idempotent.
func Normalize(raw any) History {
	switch v := raw.(type) {
	case nil:
		return History{}
	case string:
		return fromBlob(v)
	case History:
		return filter([]Turn(v))
	case []Turn:
		return filter(v)
	case []map[string]string:
		turns := make([]Turn, 0, len(v))
		for _, m := range v {
			turns = append(turns, Turn{Role: m["role"], Content: m["content"]})
		}
		return filter(turns)
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return fromItems(items)
	case []any:
		return fromItems(v)
	default:
		return History{}
	}
}

func fromBlob(blob string) History {
	if strings.TrimSpace(blob) == "" {
		return History{}
	}
	return History{{Role: RoleUser, Content: blob}}
}

func fromItems(items []any) History {
	turns := make([]Turn, 0, len(items))
	for _, item := range items {
		var turn Turn
		switch t := item.(type) {
		case Turn:
			turn = t
		case map[string]any, map[string]string:
			if err := mapstructure.WeakDecode(t, &turn); err != nil {
				continue
			}
		default:
			continue
		}
		turns = append(turns, turn)
	}
	return filter(turns)
}

func filter(turns []Turn) History {
	out := make(History, 0, len(turns))
	for _, turn := range turns {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		out = append(out, Turn{Role: role, Content: turn.Content})
	}
	return out
}

// Last returns a copy of the most recent n turns.
func (h History) Last(n int) History {
	if n <= 0 || len(h) == 0 {
		return History{}
	}
	if n > len(h) {
		n = len(h)
	}
	return append(History(nil), h[len(h)-n:]...)
}

// Append returns a new History with the turns added at the end.
func (h History) Append(turns ...Turn) History {
	out := make(History, 0, len(h)+len(turns))
	out = append(out, h...)
	return append(out, turns...)
}

// Transcript renders the history as "role: content" lines.
func (h History) Transcript() string {
	var b strings.Builder
	for i, turn := range h {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", turn.Role, turn.Content)
	}
	return b.String()
}

// User and Assistant are shorthands for building turns.
func User(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func Assistant(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }
