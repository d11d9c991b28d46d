package attendance

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syaifulazham/techlympics/core/event"
)

func TestBuildSyncPlan(t *testing.T) {
	plans := buildSyncPlan(testEndlist())
	require.Len(t, plans, 2)

	assert.Equal(t, 1, plans[0].contingent.ID)
	require.Len(t, plans[0].teams, 2)
	require.Len(t, plans[0].managers, 1, "a manager shared by two teams is synced once")
	assert.Equal(t, "Teens", plans[0].managers[0].contestGroup)

	assert.Equal(t, 2, plans[1].contingent.ID)
	require.Len(t, plans[1].teams, 1, "the team with an over-age member is skipped")
	assert.Equal(t, 20, plans[1].teams[0].TeamID)
	assert.Len(t, plans[1].managers, 1)

	assert.Empty(t, buildSyncPlan(nil))
}

func TestService_Count(t *testing.T) {
	d := newTestService()
	ctx := context.Background()

	tests := []struct {
		chunkSize int
		want      CountResult
	}{
		{chunkSize: 3, want: CountResult{TotalTeams: 4, ChunkSize: 3, TotalChunks: 2}},
		{chunkSize: 0, want: CountResult{TotalTeams: 4, ChunkSize: 50, TotalChunks: 1}},
		{chunkSize: 1, want: CountResult{TotalTeams: 4, ChunkSize: 1, TotalChunks: 4}},
		{chunkSize: 9000, want: CountResult{TotalTeams: 4, ChunkSize: 500, TotalChunks: 1}},
	}
	for _, tc := range tests {
		got, err := d.svc.Count(ctx, 1, tc.chunkSize)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := d.svc.Count(ctx, 404, 10)
	assert.Equal(t, event.ErrNotFound, err)
}

func TestService_SyncChunk(t *testing.T) {
	d := newTestService()
	ctx := context.Background()

	res, err := d.svc.SyncChunk(ctx, 1, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, "Chunk processed: 3 teams", res.Message)
	assert.Equal(t, ChunkMetrics{
		ProcessedTeams: 3,
		NewContingents: 2,
		NewTeams:       3,
		NewContestants: 4,
		NewManagers:    2,
		Errors:         []string{},
	}, res.Metrics)

	// rows
	contestant, ok := d.repo.contestants[Hashcode("100101101111", 1, 1)]
	require.True(t, ok)
	assert.Equal(t, StatusNotPresent, contestant.AttendanceStatus)
	assert.Equal(t, "Teens", contestant.ContestGroup)
	assert.Equal(t, "RBT Robotik", contestant.ContestName)
	assert.Equal(t, "Selangor", contestant.State)
	assert.Equal(t, 10, *contestant.StateID)

	_, ok = d.repo.contestants[Hashcode("4", 1, 2)]
	assert.True(t, ok, "contestants without IC are hashed by id")
	mgr, ok := d.repo.managers[Hashcode("101", 1, 2)]
	require.True(t, ok, "managers without IC are hashed by id")
	assert.Equal(t, EmailPending, mgr.EmailStatus)
	assert.Equal(t, "Teens", mgr.ContestGroup)
	_, ok = d.repo.teams[Hashcode(teamIC(21), 1, 2)]
	assert.False(t, ok, "ineligible teams are not synced")

	// resync refreshes
	res, err = d.svc.SyncChunk(ctx, 1, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, ChunkMetrics{
		ProcessedTeams:     3,
		UpdatedContingents: 2,
		UpdatedTeams:       3,
		UpdatedContestants: 4,
		UpdatedManagers:    2,
		Errors:             []string{},
	}, res.Metrics)
}

func TestService_SyncChunk_Pages(t *testing.T) {
	d := newTestService()
	ctx := context.Background()

	res, err := d.svc.SyncChunk(ctx, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "Chunk processed: 1 teams", res.Message)
	assert.Equal(t, 1, res.Metrics.NewContingents)

	res, err = d.svc.SyncChunk(ctx, 1, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, "No teams to process in this chunk", res.Message)
	assert.Zero(t, res.Metrics.ProcessedTeams)
	assert.NotNil(t, res.Metrics.Errors)
}

func TestService_SyncChunk_Failures(t *testing.T) {
	d := newTestService()
	ctx := context.Background()

	d.repo.failContingent = 2
	res, err := d.svc.SyncChunk(ctx, 1, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metrics.ProcessedTeams)
	assert.Equal(t, 1, res.Metrics.ErrorCount)
	require.Len(t, res.Metrics.Errors, 1)
	assert.Contains(t, res.Metrics.Errors[0], "Contingent 2 (SMK Tanjung)")
	assert.Contains(t, res.Metrics.Errors[0], "deadlock detected")

	d.participants.pageErr = errors.New("connection refused")
	_, err = d.svc.SyncChunk(ctx, 1, 50, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading endlist chunk")
}

func TestService_SyncChunk_InvalidatesStats(t *testing.T) {
	d := newTestService()
	ctx := context.Background()

	_, err := d.svc.Statistics(ctx, 1, nil)
	require.NoError(t, err)
	_, err = d.svc.Statistics(ctx, 1, []string{"Kids"})
	require.NoError(t, err)
	_, err = d.svc.Statistics(ctx, 2, nil)
	require.NoError(t, err)
	require.Len(t, d.cache.data, 3)

	_, err = d.svc.SyncChunk(ctx, 1, 50, 0)
	require.NoError(t, err)
	assert.Len(t, d.cache.data, 1)
	_, ok := d.cache.data[statsKey(2, nil)]
	assert.True(t, ok, "other events keep their cache")
}
