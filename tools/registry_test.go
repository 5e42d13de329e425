package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogForQualifiesNames(t *testing.T) {
	r := DefaultRegistry()

	specs := r.CatalogFor([]string{"gmail"})
	require.NotEmpty(t, specs)

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
		assert.NotEmpty(t, spec.InputSchema)
	}
	assert.Contains(t, names, "gmail_search_inbox")
	assert.Contains(t, names, "gmail_draft_reply")
	assert.NotContains(t, names, "github_list_pull_requests")
}

func TestCatalogForSkipsUnknownCategory(t *testing.T) {
	r := DefaultRegistry()

	specs := r.CatalogFor([]string{"telepathy", "slack"})
	require.NotEmpty(t, specs)
	for _, spec := range specs {
		assert.Contains(t, spec.Name, "slack_")
	}
}

func TestInvokeUnknownCategory(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Invoke(context.Background(), "telepathy_read_mind", nil)
	require.Error(t, err)

	var catErr *UnknownCategoryError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, "telepathy", catErr.Category)
}

func TestInvokeUnknownFunction(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Invoke(context.Background(), "gmail_teleport", nil)
	require.Error(t, err)

	var fnErr *UnknownFunctionError
	require.ErrorAs(t, err, &fnErr)
	assert.Equal(t, "gmail", fnErr.Category)
	assert.Equal(t, "teleport", fnErr.Function)
}

func TestInvokeExecutesHandler(t *testing.T) {
	r := DefaultRegistry()

	result, err := r.Invoke(context.Background(), "gmail_archive_email", map[string]any{
		"message_id": "msg-106",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Data, "msg-106")
	assert.False(t, result.RequiresApproval)
}

func TestApprovePullRequestRequiresApproval(t *testing.T) {
	r := DefaultRegistry()

	result, err := r.Invoke(context.Background(), "github_approve_pull_request", map[string]any{
		"number": "42",
	})
	require.NoError(t, err)
	assert.True(t, result.RequiresApproval)
	assert.Contains(t, result.Data, "#42")
}

func TestDefaultArgsCopied(t *testing.T) {
	r := DefaultRegistry()

	args := r.DefaultArgs("gmail_draft_reply")
	require.NotNil(t, args)
	assert.Equal(t, "msg-unknown", args["message_id"])

	// mutating the copy must not leak into the registry
	args["message_id"] = "msg-999"
	again := r.DefaultArgs("gmail_draft_reply")
	assert.Equal(t, "msg-unknown", again["message_id"])

	assert.Nil(t, r.DefaultArgs("gmail_search_inbox"))
	assert.Nil(t, r.DefaultArgs("nope"))
}
