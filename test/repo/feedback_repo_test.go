package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helmsan/kompass/internal/model"
	"github.com/helmsan/kompass/internal/repo"
	"github.com/helmsan/kompass/test/testutil"
)

func TestFeedbackRepoListsNegativeOnly(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	feedback := repo.NewFeedbackRepo(conn)
	ctx := context.Background()
	scope := model.Scope{Org: testutil.RandomOrg(t)}

	require.NoError(t, feedback.Add(ctx, scope, "why is export so slow?", "negative", 1000))
	require.NoError(t, feedback.Add(ctx, scope, "great answer, thanks", "positive", 1001))
	require.NoError(t, feedback.Add(ctx, scope, "ancient complaint", "negative", 10))

	signals, err := feedback.ListRecent(ctx, scope, 500, 50)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	require.Equal(t, "why is export so slow?", signals[0].Text)
	require.Equal(t, "feedback", signals[0].Source)
	require.Equal(t, model.SignalComplaint, signals[0].Kind)
	require.Equal(t, int64(1000), signals[0].OccurredAt)
}
