// Package jobfile loads job definitions from markdown documents.
//
// A job document is one markdown file with named sections:
//
//	# Inbox triage
//
//	## Schedule
//	*/30 * * * *
//
//	## Goal
//	Keep the inbox tidy without sending anything.
//
//	## Policies
//	- Prefer archiving over deleting
//
//	## Boundaries
//	- Never send emails directly
//
//	## Tools
//	- gmail
//
//	## Enabled
//	true
//
// The job id is derived deterministically from the file base name, so
// identity is stable across reloads but changes if the file is renamed.
package jobfile

import (
	"bufio"
	"strings"

	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/store"
)

// ErrMissingSchedule marks a document with no Schedule section.
// Such documents are rejected: the job is not loaded at all.
var ErrMissingSchedule = errors.New("job document has no Schedule section")

// IDFromName derives the stable job id from a source document name.
func IDFromName(name string) string {
	name = strings.TrimSuffix(name, ".md")
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	return "JOB_" + slug
}

// Parse parses one job document. name is the source file name (used for
// identity); content is the markdown body.
func Parse(name string, content []byte) (*store.Job, error) {
	job := &store.Job{
		ID:         IDFromName(name),
		Enabled:    true,
		Policies:   []string{},
		Boundaries: []string{},
		Tools:      []string{},
	}

	var section string
	var goalLines []string

	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "# ") && !strings.HasPrefix(trimmed, "## "):
			job.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			section = ""
			continue
		case strings.HasPrefix(trimmed, "## "):
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")))
			continue
		}

		if trimmed == "" {
			continue
		}

		switch section {
		case "schedule":
			if job.Schedule == "" {
				job.Schedule = strings.Trim(trimmed, "`")
			}
		case "goal":
			goalLines = append(goalLines, trimmed)
		case "policies":
			if item, ok := bulletItem(trimmed); ok {
				job.Policies = append(job.Policies, item)
			}
		case "boundaries":
			if item, ok := bulletItem(trimmed); ok {
				job.Boundaries = append(job.Boundaries, item)
			}
		case "tools":
			if item, ok := bulletItem(trimmed); ok {
				job.Tools = append(job.Tools, item)
			}
		case "enabled", "status":
			value := strings.ToLower(strings.Trim(trimmed, "`"))
			if value == "false" || value == "disabled" {
				job.Enabled = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read job document %s", name)
	}

	if job.Schedule == "" {
		return nil, errors.Wrapf(ErrMissingSchedule, "document %s", name)
	}

	if job.Title == "" {
		job.Title = strings.TrimSuffix(name, ".md")
	}
	if len(goalLines) > 0 {
		job.Goal = strings.Join(goalLines, "\n")
	}

	return job, nil
}

func bulletItem(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}
