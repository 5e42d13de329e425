package agent

import "strings"

// boundaryRule pairs boundary-phrase substrings with tool-name substrings.
// A rule matches when the boundary text contains any phrase and the tool
// name contains any tool substring. Matching is deterministic and local;
// the reasoning service is never consulted.
type boundaryRule struct {
	phrases []string
	tools   []string
}

// boundaryRules is a closed, ordered table. New cases are added as new
// entries, not as control flow. It only recognizes the pairs listed here.
var boundaryRules = []boundaryRule{
	{
		phrases: []string{"never send"},
		tools:   []string{"draft_reply", "send_email", "send_message", "post_message"},
	},
	{
		phrases: []string{"never approve", "without approval"},
		tools:   []string{"approve"},
	},
	{
		phrases: []string{"never post"},
		tools:   []string{"post_message", "send_message"},
	},
	{
		phrases: []string{"never merge"},
		tools:   []string{"merge"},
	},
	{
		phrases: []string{"never delete"},
		tools:   []string{"delete"},
	},
	{
		phrases: []string{"never unsubscribe"},
		tools:   []string{"unsubscribe"},
	},
}

func (r boundaryRule) matches(boundary, toolName string) bool {
	phraseHit := false
	for _, phrase := range r.phrases {
		if strings.Contains(boundary, phrase) {
			phraseHit = true
			break
		}
	}
	if !phraseHit {
		return false
	}
	for _, tool := range r.tools {
		if strings.Contains(toolName, tool) {
			return true
		}
	}
	return false
}

// checkBoundaries tests a tool name against the job's boundaries in order.
// The first boundary with a matching rule wins and is returned verbatim.
func checkBoundaries(boundaries []string, toolName string) (string, bool) {
	loweredTool := strings.ToLower(toolName)
	for _, boundary := range boundaries {
		lowered := strings.ToLower(boundary)
		for _, rule := range boundaryRules {
			if rule.matches(lowered, loweredTool) {
				return boundary, true
			}
		}
	}
	return "", false
}
