package jobfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stewardhq/steward/errors"
)

const inboxDoc = `# Inbox triage

## Schedule
*/30 * * * *

## Goal
Keep the inbox tidy without sending anything.
Review new mail and categorize it.

## Policies
- Prefer archiving over deleting
- Surface anything that looks urgent

## Boundaries
- Never send emails directly
- Never unsubscribe from anything

## Tools
- gmail
`

func TestParse(t *testing.T) {
	job, err := Parse("inbox-triage.md", []byte(inboxDoc))
	require.NoError(t, err)

	assert.Equal(t, "JOB_inbox-triage", job.ID)
	assert.Equal(t, "Inbox triage", job.Title)
	assert.Equal(t, "*/30 * * * *", job.Schedule)
	assert.Contains(t, job.Goal, "Keep the inbox tidy")
	assert.Contains(t, job.Goal, "categorize it")
	assert.Equal(t, []string{
		"Prefer archiving over deleting",
		"Surface anything that looks urgent",
	}, job.Policies)
	assert.Equal(t, []string{
		"Never send emails directly",
		"Never unsubscribe from anything",
	}, job.Boundaries)
	assert.Equal(t, []string{"gmail"}, job.Tools)
	assert.True(t, job.Enabled)
}

func TestParseMissingScheduleRejected(t *testing.T) {
	doc := "# No schedule\n\n## Goal\nDo something.\n"
	_, err := Parse("broken.md", []byte(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSchedule))
}

func TestParseDisabled(t *testing.T) {
	for _, value := range []string{"false", "disabled", "FALSE", "Disabled"} {
		doc := "# Off\n\n## Schedule\n0 9 * * *\n\n## Enabled\n" + value + "\n"
		job, err := Parse("off.md", []byte(doc))
		require.NoError(t, err)
		assert.False(t, job.Enabled, "value %q should disable", value)
	}

	// Anything else, or absence, means enabled
	doc := "# On\n\n## Schedule\n0 9 * * *\n\n## Enabled\nyes please\n"
	job, err := Parse("on.md", []byte(doc))
	require.NoError(t, err)
	assert.True(t, job.Enabled)
}

func TestParseStatusSectionAlias(t *testing.T) {
	doc := "# Aliased\n\n## Schedule\n0 9 * * *\n\n## Status\ndisabled\n"
	job, err := Parse("aliased.md", []byte(doc))
	require.NoError(t, err)
	assert.False(t, job.Enabled)
}

func TestParseTitleFallsBackToFileName(t *testing.T) {
	doc := "## Schedule\n0 9 * * *\n"
	job, err := Parse("untitled-job.md", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "untitled-job", job.Title)
}

func TestIDFromNameStable(t *testing.T) {
	assert.Equal(t, "JOB_inbox-triage", IDFromName("inbox-triage.md"))
	assert.Equal(t, "JOB_inbox-triage", IDFromName("Inbox Triage.md"))
	assert.Equal(t, IDFromName("same.md"), IDFromName("same.md"))
	assert.NotEqual(t, IDFromName("one.md"), IDFromName("two.md"))
}

func TestLoadDirSkipsBadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.md"), []byte(inboxDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.md"), []byte("# No schedule\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	jobs, err := LoadDir(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "JOB_good", jobs[0].ID)
}
