package agent

import (
	"fmt"
	"strings"

	"github.com/stewardhq/steward/store"
)

// buildSystemDirective renders the job into the system prompt: the goal,
// policies as soft guidance, and boundaries as hard limits the service
// must not cross on its own.
func buildSystemDirective(job *store.Job) string {
	var b strings.Builder

	b.WriteString("You are an autonomous assistant executing a scheduled job on behalf of its owner.\n\n")
	fmt.Fprintf(&b, "Job: %s\n", job.Title)
	fmt.Fprintf(&b, "Goal: %s\n", job.Goal)

	if len(job.Policies) > 0 {
		b.WriteString("\nPolicies (guidance to follow where reasonable):\n")
		for _, policy := range job.Policies {
			fmt.Fprintf(&b, "- %s\n", policy)
		}
	}

	if len(job.Boundaries) > 0 {
		b.WriteString("\nBoundaries (hard limits, never cross these yourself):\n")
		for _, boundary := range job.Boundaries {
			fmt.Fprintf(&b, "- %s\n", boundary)
		}
		b.WriteString("\nIf achieving the goal would require crossing a boundary, request the action " +
			"anyway and it will be held for human approval instead of executed. Do not work around " +
			"a boundary by other means.\n")
	}

	b.WriteString("\nUse the provided tools to accomplish the goal, then finish with a short summary " +
		"of what you did and anything that needs human attention.")

	return b.String()
}

// kickoffMessage opens the transcript for a run
func kickoffMessage(job *store.Job) string {
	return fmt.Sprintf("Begin the scheduled run for %q. Work toward the goal and report when done.", job.Title)
}
