// Package sync implements the one-way batch synchronizer: the planner
// that decides what should change, the executor that drives the plan
// through the rate-limited pipeline, and the report/stats sink.
package sync

import "time"

// Status mirrors the remote media-list status enum.
type Status string

const (
	StatusCurrent   Status = "CURRENT"
	StatusPlanning  Status = "PLANNING"
	StatusCompleted Status = "COMPLETED"
	StatusDropped   Status = "DROPPED"
	StatusPaused    Status = "PAUSED"
	StatusRepeating Status = "REPEATING"
)

// MatchStatus describes how a local entry was paired to a remote
// candidate by the (out-of-scope) fuzzy-matching collaborator.
type MatchStatus string

const (
	MatchMatched MatchStatus = "matched"
	MatchManual  MatchStatus = "manual"
	MatchPending MatchStatus = "pending"
	MatchSkipped MatchStatus = "skipped"
)

// LocalEntry is a tracked manga row from the user's exported file.
type LocalEntry struct {
	MediaID  int
	Status   Status
	Progress int
	Score    float64
	Private  bool
	Title    string
	CoverURL string
}

// RemoteSnapshotEntry is the user's current state on AniList for a
// media id, when one exists.
type RemoteSnapshotEntry struct {
	EntryID  int
	Status   Status
	Progress int
	Score    float64
	Private  bool
}

// MatchedPair is the output of the external match provider: a local
// entry, its optional remote snapshot, and the accepted-candidate
// match status. Only Matched and Manual pairs with a remote media id
// are synced (spec.md §4.C step 1).
type MatchedPair struct {
	Local       LocalEntry
	Remote      *RemoteSnapshotEntry // nil when the entry does not exist remotely
	MatchStatus MatchStatus
}

// SyncMetadata carries incremental step-expansion state and retry
// bookkeeping for a planned entry.
type SyncMetadata struct {
	Incremental    bool
	TargetProgress int
	Step           int // 1, 2, or 3; 0 when unset
	ResumeFromStep int // 0 means "no resume, start from the first step"
	RetryCount     int
	RetryTimestamp time.Time
}

// PreviousValues captures the remote snapshot fields used to diff
// against the desired state. Its presence is the canonical "is
// update, not create" flag (spec.md §3 invariant 1).
type PreviousValues struct {
	Status   Status
	Progress int
	Score    float64
	Private  bool
}

// PlannedEntry is the planner's output for one media id: the desired
// post-sync state plus enough context to build mutation variables and
// report progress.
type PlannedEntry struct {
	MediaID int

	Status   Status
	Progress int
	Score    float64
	Private  bool

	// PreviousValues is nil for creates.
	PreviousValues *PreviousValues

	SyncMetadata *SyncMetadata

	Title    string
	CoverURL string
}

// IsCreate reports whether this entry has no remote counterpart yet.
func (p *PlannedEntry) IsCreate() bool {
	return p.PreviousValues == nil
}

// Config carries the planner's precedence bits and executor behavior
// toggles. It mirrors core.SyncConfig field-for-field; kept as its own
// type here so sync has no import-time dependency on core's ambient
// config plumbing — only the values it needs.
type Config struct {
	PreserveCompletedStatus   bool
	PrioritizeAniListStatus   bool
	PrioritizeAniListProgress bool
	PrioritizeAniListScore    bool
	SetPrivate                bool
	Incremental               bool
	DryRun                    bool
}

// EffectiveStatus computes the status the local entry would carry
// absent any remote override. The auto-pause policy is opaque to the
// core per spec.md §3; this implementation's policy is: the local
// entry's own tracked status, unchanged. It is a plain function that
// the planner calls directly; it cannot be replaced at run time.
func EffectiveStatus(local LocalEntry, _ Config) Status {
	return local.Status
}

// ProgressSnapshot is emitted to the progress sink after each step that
// succeeds and at least once per second during rate-limit countdowns
// (spec.md §6); a step that fails emits none. The executor fills Total,
// Completed, CurrentEntry, CurrentStep, RateLimited and RetryAfterMs;
// Successful, Failed, Skipped and TotalSteps are left at zero.
type ProgressSnapshot struct {
	Total        int
	Completed    int
	Successful   int
	Failed       int
	Skipped      int
	CurrentEntry *PlannedEntry
	CurrentStep  int
	TotalSteps   int
	RateLimited  bool
	RetryAfterMs int64
}

// SyncError is one failed media id's error entry in the Report.
type SyncError struct {
	MediaID int
	Message string
}

// Report is the final output of one executor run.
type Report struct {
	TotalEntries      int
	SuccessfulUpdates int
	FailedUpdates     int
	SkippedEntries    int
	Errors            []SyncError
	Timestamp         time.Time
}

// StatsRecord is the persisted running-total merged after each run
// (spec.md §4.F).
type StatsRecord struct {
	TotalSyncs    int
	EntriesSynced int
	FailedSyncs   int
	LastSyncTime  time.Time
}

// Merge folds a completed Report into the running totals per spec.md
// §4.F's exact formulas (FailedSyncs is an overwrite, not an
// accumulation).
func (s *StatsRecord) Merge(r Report) {
	s.TotalSyncs++
	s.EntriesSynced += r.SuccessfulUpdates
	s.FailedSyncs = r.FailedUpdates
	s.LastSyncTime = r.Timestamp
}

// ProgressSink receives snapshots during a run.
type ProgressSink func(ProgressSnapshot)

// PlanMap is the planner's output: media id -> ordered steps.
type PlanMap map[int][]*PlannedEntry
