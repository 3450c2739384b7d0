package router

import (
	"fmt"
	"regexp"
	"strings"
)

// Intent is the routing decision for one query.
type Intent int

const (
	// IntentDescriptive needs the document store.
	IntentDescriptive Intent = iota
	// IntentStructured needs the structured store.
	IntentStructured
	// IntentCompound needs both stores, structured first.
	IntentCompound
	// IntentCasual is answered without any store.
	IntentCasual
)

// DefaultIntent is used when classification is inconclusive or fails.
const DefaultIntent = IntentDescriptive

var intentNames = map[Intent]string{
	IntentDescriptive: "descriptive",
	IntentStructured:  "structured",
	IntentCompound:    "compound",
	IntentCasual:      "casual",
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return fmt.Sprintf("intent(%d)", int(i))
}

// ParseIntentName maps a configuration value to an Intent.
func ParseIntentName(name string) (Intent, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultIntent, nil
	}
	for intent, n := range intentNames {
		if n == name {
			return intent, nil
		}
	}
	return DefaultIntent, fmt.Errorf("unknown intent %q", name)
}

var (
	sqlLabel  = regexp.MustCompile(`\bSQL\b`)
	ragLabel  = regexp.MustCompile(`\bRAG\b`)
	bothLabel = regexp.MustCompile(`\bBOTH\b`)
	chatLabel = regexp.MustCompile(`\bCHAT\b`)
)

// ClassifyAnswer derives the intent from the classifier's free-text answer.
// The second result is false when no label was found.
func ClassifyAnswer(answer string) (Intent, bool) {
	upper := strings.ToUpper(answer)
	sql := sqlLabel.MatchString(upper)
	rag := ragLabel.MatchString(upper)

	switch {
	case bothLabel.MatchString(upper), sql && rag:
		return IntentCompound, true
	case sql:
		return IntentStructured, true
	case rag:
		return IntentDescriptive, true
	case chatLabel.MatchString(upper):
		return IntentCasual, true
	default:
		return DefaultIntent, false
	}
}
