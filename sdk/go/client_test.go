package charterlinesdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterline/internal/config"
	"charterline/internal/db"
	"charterline/internal/engine"
	"charterline/internal/logging"
	"charterline/internal/rubric"
	"charterline/internal/server"
	charterlinesdk "charterline/sdk/go"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	e, _, err := engine.Open(context.Background(), conn, engine.WithConfig(config.Default()), engine.WithLogger(logging.Discard()))
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: e, Logger: logging.Discard()})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientOnboarding(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	client := charterlinesdk.New(srv.URL, "founder")

	c, err := client.CreateContributor(ctx, "Ada Lovelace", "ada@example.com", "technical")
	require.NoError(t, err)
	assert.Equal(t, "intake", c.WorkflowStage)

	_, _, err = client.SendAgreements(ctx, c.ID)
	require.Error(t, err)
	assert.True(t, charterlinesdk.IsCode(err, "precondition"))

	var responses []charterlinesdk.Response
	for _, e := range rubric.Table {
		responses = append(responses, charterlinesdk.Response{Category: string(e.Category), Answer: "a considered answer", Rating: 5})
	}
	ev, err := client.SubmitQuestionnaire(ctx, c.ID, "technical", responses)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, ev.OverallScore, 0.001)

	_, err = client.ConfirmTag(ctx, ev.ID, "ready:sign")
	require.NoError(t, err)

	c, agreements, err := client.SendAgreements(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "signing", c.WorkflowStage)
	assert.Len(t, agreements, 2)

	_, err = client.SignAgreement(ctx, c.ID, "nda")
	require.NoError(t, err)
	c, err = client.SignAgreement(ctx, c.ID, "ip_assignment")
	require.NoError(t, err)
	assert.Equal(t, "signed", c.NDAStatus)
	assert.Equal(t, "signed", c.IPAssignmentStatus)

	trail, err := client.EntityAudit(ctx, "contributor", c.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, trail)
	for _, entry := range trail {
		assert.Equal(t, "founder", entry.Actor)
	}
}

func TestClientErrors(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	_, err := charterlinesdk.New(srv.URL, "founder").GetContributor(ctx, "missing")
	var apiErr *charterlinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	_, err = charterlinesdk.New(srv.URL, "").RequestAction(ctx, "agent-1", "merge_code", nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "guardrail.denylist", apiErr.Details["rule"])
}

func TestClientAuditCursor(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	client := charterlinesdk.New(srv.URL, "founder")

	start, err := client.Audit(ctx, 1, 0)
	require.NoError(t, err)
	var cursor int64
	if len(start.Items) > 0 {
		cursor = start.Items[0].Seq
	}

	app, err := client.IntakeApp(ctx, "Ledgerly", "Bookkeeping for freelancers", "")
	require.NoError(t, err)
	assert.Equal(t, "unreviewed", app.Status)

	page, err := client.Audit(ctx, 10, cursor)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "app.created", page.Items[0].Action)
	assert.Equal(t, app.ID, page.Items[0].EntityID)

	status, err := client.LaunchStatus(ctx, app.ID)
	require.NoError(t, err)
	assert.False(t, status.LaunchApproved)
	assert.NotEmpty(t, status.Blockers)
}
