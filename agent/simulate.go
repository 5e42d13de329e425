package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/store"
)

// simulationScripts holds one fixed tool-call sequence per category.
// Each scripted call flows through the same boundary check, invoker, and
// ledger writes as a live run, so the rest of the system is exercised
// identically without a reasoning-service credential.
var simulationScripts = map[string][]toolCall{
	"gmail": {
		{name: "gmail_search_inbox", input: json.RawMessage(`{"query":"is:unread newer_than:1d"}`)},
		{name: "gmail_archive_email", input: json.RawMessage(`{"message_id":"msg-106"}`)},
		{name: "gmail_star_email", input: json.RawMessage(`{"message_id":"msg-105"}`)},
		{name: "gmail_flag_email", input: json.RawMessage(`{"message_id":"msg-106","reason":"sender mismatch"}`)},
		{name: "gmail_draft_reply", input: json.RawMessage(`{"message_id":"msg-105","body":"Thanks, reviewing the renewal terms now."}`)},
	},
	"github": {
		{name: "github_list_pull_requests", input: json.RawMessage(`{"state":"open"}`)},
		{name: "github_comment_on_pull_request", input: json.RawMessage(`{"number":"43","body":"CI still running, will re-check after it finishes."}`)},
		{name: "github_approve_pull_request", input: json.RawMessage(`{"number":"42"}`)},
	},
	"slack": {
		{name: "slack_list_channels", input: json.RawMessage(`{}`)},
		{name: "slack_read_messages", input: json.RawMessage(`{"channel":"#incidents"}`)},
		{name: "slack_send_message", input: json.RawMessage(`{"channel":"#general","text":"Daily digest: deploys clean, pager quiet."}`)},
	},
}

// simulate runs the scripted calls for each of the job's tool categories.
// Categories without a script are skipped with a note in the summary.
func (e *Executor) simulate(ctx context.Context, executionID string, job *store.Job) (string, error) {
	var processed, held int
	var skipped []string

	for _, category := range job.Tools {
		script, ok := simulationScripts[category]
		if !ok {
			skipped = append(skipped, category)
			continue
		}
		for _, call := range script {
			select {
			case <-ctx.Done():
				return "", errors.Wrap(ctx.Err(), "simulation interrupted")
			default:
			}

			outcome, err := e.processCall(ctx, executionID, job.Boundaries, call)
			if err != nil {
				return "", err
			}
			processed++
			if outcome.pending {
				held++
			}
		}
	}

	summary := fmt.Sprintf("Simulated run (no credential configured): processed %d tool calls, %d held for approval.", processed, held)
	if len(skipped) > 0 {
		summary += fmt.Sprintf(" Skipped categories without a script: %s.", strings.Join(skipped, ", "))
	}
	return summary, nil
}
