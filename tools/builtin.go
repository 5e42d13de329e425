package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// schema builds a flat object schema from property name → description pairs
func schema(required []string, props map[string]string) json.RawMessage {
	properties := make(map[string]any, len(props))
	for name, desc := range props {
		properties[name] = map[string]any{"type": "string", "description": desc}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	raw, _ := json.Marshal(doc)
	return raw
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// DefaultRegistry returns a registry with the builtin gmail, github, and
// slack categories. The handlers operate against sandbox data; they are
// deterministic and safe to re-invoke on approval.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterCategory("gmail", gmailFunctions())
	r.RegisterCategory("github", githubFunctions())
	r.RegisterCategory("slack", slackFunctions())
	return r
}

func gmailFunctions() []*Function {
	return []*Function{
		{
			Name:        "search_inbox",
			Description: "Search the inbox and return matching message summaries",
			InputSchema: schema(nil, map[string]string{
				"query": "Gmail search query, e.g. 'is:unread newer_than:1d'",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				query := stringArg(args, "query", "is:unread")
				return &Result{
					Success: true,
					Data: fmt.Sprintf("3 messages matching %q: [msg-104] 'Weekly metrics digest' from reports@vendor.example, "+
						"[msg-105] 'Re: contract renewal' from legal@partner.example, "+
						"[msg-106] '50%% off everything!' from promo@shop.example", query),
				}, nil
			},
		},
		{
			Name:        "archive_email",
			Description: "Archive a message by id, removing it from the inbox",
			InputSchema: schema([]string{"message_id"}, map[string]string{
				"message_id": "Id of the message to archive",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				id := stringArg(args, "message_id", "")
				if id == "" {
					return &Result{Success: false, Data: "archive_email requires message_id"}, nil
				}
				return &Result{Success: true, Data: fmt.Sprintf("archived %s", id)}, nil
			},
		},
		{
			Name:        "star_email",
			Description: "Star a message by id to mark it important",
			InputSchema: schema([]string{"message_id"}, map[string]string{
				"message_id": "Id of the message to star",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				id := stringArg(args, "message_id", "")
				return &Result{Success: true, Data: fmt.Sprintf("starred %s", id)}, nil
			},
		},
		{
			Name:        "flag_email",
			Description: "Flag a message as suspicious for later review",
			InputSchema: schema([]string{"message_id"}, map[string]string{
				"message_id": "Id of the message to flag",
				"reason":     "Why the message looks suspicious",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				id := stringArg(args, "message_id", "")
				reason := stringArg(args, "reason", "unspecified")
				return &Result{Success: true, Data: fmt.Sprintf("flagged %s (%s)", id, reason)}, nil
			},
		},
		{
			Name:        "draft_reply",
			Description: "Create a draft reply to a message; the draft is not sent",
			InputSchema: schema([]string{"message_id", "body"}, map[string]string{
				"message_id": "Id of the message to reply to",
				"body":       "Body text of the draft",
			}),
			DefaultArgs: map[string]any{
				"message_id": "msg-unknown",
				"body":       "Draft prepared pending approval",
			},
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				id := stringArg(args, "message_id", "msg-unknown")
				return &Result{Success: true, Data: fmt.Sprintf("draft created for %s", id)}, nil
			},
		},
		{
			Name:        "unsubscribe",
			Description: "Unsubscribe from the sender's mailing list",
			InputSchema: schema([]string{"message_id"}, map[string]string{
				"message_id": "Id of a message from the list to leave",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				id := stringArg(args, "message_id", "")
				return &Result{Success: true, Data: fmt.Sprintf("unsubscribed via %s", id)}, nil
			},
		},
	}
}

func githubFunctions() []*Function {
	return []*Function{
		{
			Name:        "list_pull_requests",
			Description: "List open pull requests on the configured repository",
			InputSchema: schema(nil, map[string]string{
				"state": "PR state filter: open, closed, or all",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				return &Result{
					Success: true,
					Data: "2 open pull requests: #42 'Fix pagination off-by-one' by dev-a (2 approvals, CI green), " +
						"#43 'Bump parser to v3' by dev-b (0 approvals, CI running)",
				}, nil
			},
		},
		{
			Name:        "comment_on_pull_request",
			Description: "Add a comment to a pull request",
			InputSchema: schema([]string{"number", "body"}, map[string]string{
				"number": "Pull request number",
				"body":   "Comment body",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				number := stringArg(args, "number", "?")
				return &Result{Success: true, Data: fmt.Sprintf("commented on #%s", number)}, nil
			},
		},
		{
			Name:        "approve_pull_request",
			Description: "Submit an approving review on a pull request",
			InputSchema: schema([]string{"number"}, map[string]string{
				"number": "Pull request number",
			}),
			DefaultArgs: map[string]any{"number": "42"},
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				number := stringArg(args, "number", "?")
				// Reviews carry authority a human must confer, so the result
				// is always held for explicit sign-off.
				return &Result{
					Success:          true,
					Data:             fmt.Sprintf("approval review prepared for #%s", number),
					RequiresApproval: true,
				}, nil
			},
		},
		{
			Name:        "merge_pull_request",
			Description: "Merge a pull request",
			InputSchema: schema([]string{"number"}, map[string]string{
				"number": "Pull request number",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				number := stringArg(args, "number", "?")
				return &Result{Success: true, Data: fmt.Sprintf("merged #%s", number)}, nil
			},
		},
		{
			Name:        "create_issue",
			Description: "Open a new issue on the configured repository",
			InputSchema: schema([]string{"title"}, map[string]string{
				"title": "Issue title",
				"body":  "Issue body",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				title := stringArg(args, "title", "untitled")
				return &Result{Success: true, Data: fmt.Sprintf("opened issue %q", title)}, nil
			},
		},
	}
}

func slackFunctions() []*Function {
	return []*Function{
		{
			Name:        "list_channels",
			Description: "List channels the workspace bot can read",
			InputSchema: schema(nil, nil),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				return &Result{Success: true, Data: "channels: #general, #incidents, #releases"}, nil
			},
		},
		{
			Name:        "read_messages",
			Description: "Read recent messages from a channel",
			InputSchema: schema([]string{"channel"}, map[string]string{
				"channel": "Channel name, e.g. #incidents",
			}),
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				channel := stringArg(args, "channel", "#general")
				return &Result{
					Success: true,
					Data:    fmt.Sprintf("latest in %s: 'deploy 2.4.1 finished', 'pager quiet overnight'", channel),
				}, nil
			},
		},
		{
			Name:        "send_message",
			Description: "Send a message to a channel",
			InputSchema: schema([]string{"channel", "text"}, map[string]string{
				"channel": "Channel name",
				"text":    "Message text",
			}),
			DefaultArgs: map[string]any{
				"channel": "#general",
				"text":    "Message pending approval",
			},
			Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
				channel := stringArg(args, "channel", "#general")
				return &Result{Success: true, Data: fmt.Sprintf("sent to %s", channel)}, nil
			},
		},
	}
}
