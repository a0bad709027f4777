package sync

import (
	"errors"
	"testing"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{PreserveCompletedStatus: true}
}

func TestPlan_CreateForUnmatchedRemote(t *testing.T) {
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusCurrent, Progress: 3},
			Remote:      nil,
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, baseConfig())
	require.NoError(t, err)
	require.Contains(t, plan, 1)
	assert.True(t, plan[1][0].IsCreate())
}

func TestPlan_NoChangeProducesNoEntry(t *testing.T) {
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusCurrent, Progress: 5, Score: 8},
			Remote:      &RemoteSnapshotEntry{Status: StatusCurrent, Progress: 5, Score: 8},
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, baseConfig())
	require.NoError(t, err)
	assert.NotContains(t, plan, 1)
}

func TestPlan_PreserveCompletedShortCircuit(t *testing.T) {
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusCurrent, Progress: 99},
			Remote:      &RemoteSnapshotEntry{Status: StatusCompleted, Progress: 24},
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, baseConfig())
	require.NoError(t, err)
	assert.NotContains(t, plan, 1, "completed remote entries are left untouched")
}

func TestPlan_PrioritizeAniListStatusUsesRemote(t *testing.T) {
	cfg := Config{PrioritizeAniListStatus: true}
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusPlanning, Progress: 1},
			Remote:      &RemoteSnapshotEntry{Status: StatusCurrent, Progress: 1},
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, cfg)
	require.NoError(t, err)
	require.Contains(t, plan, 1)
	assert.Equal(t, StatusCurrent, plan[1][0].Status)
}

func TestPlan_StatusPrecedenceFallsBackToLocalWhenNoRemote(t *testing.T) {
	// Open Question #1: prioritizeAniListStatus=true but no remote entry
	// exists yet -> falls back to effectiveStatus(local, config).
	cfg := Config{PrioritizeAniListStatus: true}
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusPlanning, Progress: 0},
			Remote:      nil,
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusPlanning, plan[1][0].Status)
}

func TestPlan_PrioritizeAniListProgressOnlyWhenRemoteAhead(t *testing.T) {
	// Score also differs so the pair produces a plan entry; the point
	// under test is that the resolved progress follows the remote
	// value (12) rather than regressing to the lower local value (5).
	cfg := Config{PrioritizeAniListProgress: true}
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusCurrent, Progress: 5, Score: 9},
			Remote:      &RemoteSnapshotEntry{Status: StatusCurrent, Progress: 12, Score: 7},
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, cfg)
	require.NoError(t, err)
	require.Contains(t, plan, 1)
	assert.Equal(t, 12, plan[1][0].Progress)
}

func TestPlan_SkipsPendingAndSkippedMatches(t *testing.T) {
	pairs := []MatchedPair{
		{Local: LocalEntry{MediaID: 1, Status: StatusCurrent}, MatchStatus: MatchPending},
		{Local: LocalEntry{MediaID: 2, Status: StatusCurrent}, MatchStatus: MatchSkipped},
	}
	plan, err := Plan(pairs, baseConfig())
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestPlan_DuplicateMediaIDRejected(t *testing.T) {
	pairs := []MatchedPair{
		{Local: LocalEntry{MediaID: 1, Status: StatusCurrent}, MatchStatus: MatchMatched},
		{Local: LocalEntry{MediaID: 1, Status: StatusPlanning}, MatchStatus: MatchMatched},
	}
	_, err := Plan(pairs, baseConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDuplicateMediaID))
}

func TestExpandSteps_NonIncrementalSingleStep(t *testing.T) {
	p := &PlannedEntry{MediaID: 1, Status: StatusCurrent, Progress: 5}
	steps := ExpandSteps(p, Config{Incremental: false}, 1)
	require.Len(t, steps, 1)
	assert.False(t, steps[0].SyncMetadata.Incremental)
}

func TestExpandSteps_IncrementalProgressAndMetadata(t *testing.T) {
	p := &PlannedEntry{
		MediaID:        1,
		Status:         StatusCompleted,
		Progress:       10,
		PreviousValues: &PreviousValues{Status: StatusCurrent, Progress: 5},
	}
	steps := ExpandSteps(p, Config{Incremental: true}, 1)
	require.Len(t, steps, 3, "progress delta + metadata change yields steps 1, 2, 3")
	assert.Equal(t, 1, steps[0].SyncMetadata.Step)
	assert.Equal(t, 2, steps[1].SyncMetadata.Step)
	assert.Equal(t, 3, steps[2].SyncMetadata.Step)
}

func TestExpandSteps_ResumeFromStepDropsEarlierSteps(t *testing.T) {
	p := &PlannedEntry{
		MediaID:        1,
		Status:         StatusCompleted,
		Progress:       10,
		PreviousValues: &PreviousValues{Status: StatusCurrent, Progress: 5},
	}
	steps := ExpandSteps(p, Config{Incremental: true}, 3)
	require.Len(t, steps, 1)
	assert.Equal(t, 3, steps[0].SyncMetadata.Step)
}

func TestExpandSteps_MetadataOnlyChangeSkipsProgressSteps(t *testing.T) {
	p := &PlannedEntry{
		MediaID:        1,
		Status:         StatusCompleted,
		Progress:       5,
		PreviousValues: &PreviousValues{Status: StatusCurrent, Progress: 5},
	}
	steps := ExpandSteps(p, Config{Incremental: true}, 1)
	require.Len(t, steps, 1)
	assert.Equal(t, 3, steps[0].SyncMetadata.Step)
}

func TestExpandSteps_SingleProgressAdvanceSkipsSettleStep(t *testing.T) {
	// Δprogress=+1 already lands on the target, so step 2 (settle) is
	// redundant: only step 1 should fire.
	p := &PlannedEntry{
		MediaID:        1,
		Status:         StatusCurrent,
		Progress:       6,
		PreviousValues: &PreviousValues{Status: StatusCurrent, Progress: 5},
	}
	steps := ExpandSteps(p, Config{Incremental: true}, 1)
	require.Len(t, steps, 1)
	assert.Equal(t, 1, steps[0].SyncMetadata.Step)
}

func TestExpandSteps_CreateAtProgressOneSkipsSettleStep(t *testing.T) {
	p := &PlannedEntry{MediaID: 1, Status: StatusCurrent, Progress: 1}
	steps := ExpandSteps(p, Config{Incremental: true}, 1)
	require.Len(t, steps, 2, "a create always has a metadata change, but progress 0->1 needs only step 1")
	assert.Equal(t, 1, steps[0].SyncMetadata.Step)
	assert.Equal(t, 3, steps[1].SyncMetadata.Step)
}

func TestPlan_PrivacyPreservedWhenNotRequested(t *testing.T) {
	// An existing remote entry's privacy must survive
	// untouched unless SetPrivate was explicitly requested.
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusCurrent, Progress: 5, Score: 9, Private: false},
			Remote:      &RemoteSnapshotEntry{Status: StatusCurrent, Progress: 5, Score: 7, Private: true},
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, Config{})
	require.NoError(t, err)
	require.Contains(t, plan, 1)
	assert.True(t, plan[1][0].Private, "remote privacy must be preserved, not cleared by local.Private=false")
}

func TestPlan_SetPrivateForcesTrueEvenWhenRemoteIsPublic(t *testing.T) {
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusCurrent, Progress: 5},
			Remote:      &RemoteSnapshotEntry{Status: StatusCurrent, Progress: 5, Private: false},
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, Config{SetPrivate: true})
	require.NoError(t, err)
	require.Contains(t, plan, 1)
	assert.True(t, plan[1][0].Private)
}

func TestPlan_UnscoredLocalDoesNotClobberRemoteScore(t *testing.T) {
	// local.Score=0 means "never scored locally", not "score is zero" --
	// it must not register as a change against a real remote score.
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusCurrent, Progress: 5, Score: 0},
			Remote:      &RemoteSnapshotEntry{Status: StatusCurrent, Progress: 5, Score: 8},
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, Config{})
	require.NoError(t, err)
	assert.NotContains(t, plan, 1)
}

func TestPlan_SmallScoreDriftWithinToleranceIsIgnored(t *testing.T) {
	pairs := []MatchedPair{
		{
			Local:       LocalEntry{MediaID: 1, Status: StatusCurrent, Progress: 5, Score: 8.2},
			Remote:      &RemoteSnapshotEntry{Status: StatusCurrent, Progress: 5, Score: 8},
			MatchStatus: MatchMatched,
		},
	}
	plan, err := Plan(pairs, Config{})
	require.NoError(t, err)
	assert.NotContains(t, plan, 1, "0.2 drift is under the 0.5 tolerance band")
}
