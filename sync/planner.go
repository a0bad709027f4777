package sync

import (
	"fmt"
	"math"

	"github.com/rlalpha49/kenmeisync/core"
)

// scoreChangeTolerance is spec.md §4.C step 4's score-comparison band:
// differences smaller than this are float noise, not a real change.
const scoreChangeTolerance = 0.5

// Plan computes the batch of entries to push to AniList from a set of
// matched pairs, per spec.md §4.C. It is a pure transformation: no
// network or storage I/O happens here (spec.md §5).
func Plan(pairs []MatchedPair, config Config) (PlanMap, error) {
	if err := checkDuplicateMediaIDs(pairs); err != nil {
		return nil, err
	}

	plan := make(PlanMap)

	for _, pair := range pairs {
		if pair.MatchStatus != MatchMatched && pair.MatchStatus != MatchManual {
			continue
		}
		if pair.Local.MediaID == 0 {
			continue
		}

		planned := planOne(pair, config)
		if planned == nil {
			continue
		}

		steps := ExpandSteps(planned, config, 1)
		plan[pair.Local.MediaID] = steps
	}

	return plan, nil
}

func checkDuplicateMediaIDs(pairs []MatchedPair) error {
	seen := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		if p.Local.MediaID == 0 {
			continue
		}
		if seen[p.Local.MediaID] {
			return &core.FrameworkError{
				Op:      "sync.Plan",
				Kind:    "planner",
				ID:      fmt.Sprintf("%d", p.Local.MediaID),
				Message: "duplicate media id in plan",
				Err:     core.ErrDuplicateMediaID,
			}
		}
		seen[p.Local.MediaID] = true
	}
	return nil
}

// planOne computes the single desired-state PlannedEntry for a pair,
// or nil when the pair needs no change (preserve-completed
// short-circuit, or no field differs from the remote snapshot).
func planOne(pair MatchedPair, config Config) *PlannedEntry {
	local := pair.Local
	remote := pair.Remote

	if config.PreserveCompletedStatus && remote != nil && remote.Status == StatusCompleted {
		return nil
	}

	desiredStatus := desiredStatus(local, remote, config)
	desiredProgress := desiredProgress(local, remote, config)
	desiredScore := desiredScore(local, remote, config)
	desiredPrivate := desiredPrivate(remote, config)

	planned := &PlannedEntry{
		MediaID:  local.MediaID,
		Status:   desiredStatus,
		Progress: desiredProgress,
		Score:    desiredScore,
		Private:  desiredPrivate,
		Title:    local.Title,
		CoverURL: local.CoverURL,
	}

	if remote != nil {
		prev := &PreviousValues{
			Status:   remote.Status,
			Progress: remote.Progress,
			Score:    remote.Score,
			Private:  remote.Private,
		}
		if !hasChange(planned, prev, local, config) {
			return nil
		}
		planned.PreviousValues = prev
	}

	return planned
}

func desiredStatus(local LocalEntry, remote *RemoteSnapshotEntry, config Config) Status {
	if config.PrioritizeAniListStatus && remote != nil {
		return remote.Status
	}
	return EffectiveStatus(local, config)
}

func desiredProgress(local LocalEntry, remote *RemoteSnapshotEntry, config Config) int {
	if config.PrioritizeAniListProgress && remote != nil && remote.Progress > local.Progress {
		return remote.Progress
	}
	return local.Progress
}

func desiredScore(local LocalEntry, remote *RemoteSnapshotEntry, config Config) float64 {
	if config.PrioritizeAniListScore && remote != nil && remote.Score > 0 {
		return remote.Score
	}
	return local.Score
}

// desiredPrivate composes the target privacy flag: an explicit
// SetPrivate request always wins, otherwise an existing remote entry's
// privacy is preserved, and only a brand new entry falls back to
// SetPrivate (false, absent any request).
func desiredPrivate(remote *RemoteSnapshotEntry, config Config) bool {
	if remote != nil {
		if config.SetPrivate {
			return true
		}
		return remote.Private
	}
	return config.SetPrivate
}

// hasChange is the exact numeric/status change-detection predicate
// from spec.md §4.C step 4: any one differing field is enough to
// include the entry. The score comparison ignores an unscored local
// entry (score 0) against a real remote score, and the privacy
// comparison only fires when a privacy change was actually requested,
// so neither field gets clobbered by a value the user never set.
func hasChange(planned *PlannedEntry, prev *PreviousValues, local LocalEntry, config Config) bool {
	scoreChanged := local.Score > 0 && math.Abs(planned.Score-prev.Score) >= scoreChangeTolerance
	privateChanged := config.SetPrivate && planned.Private != prev.Private
	return planned.Status != prev.Status ||
		planned.Progress != prev.Progress ||
		scoreChanged ||
		privateChanged
}

// ExpandSteps applies the incremental step-expansion matrix from
// spec.md §4.C: non-incremental entries produce a single step;
// incremental entries split a progress delta and/or a metadata change
// into up to three ordered steps (progress-advance, progress-settle,
// metadata). resumeFrom drops any step numbered below it. Plan always
// passes 1, and the executor's RetryFailed does not call this
// function, so no caller in this package resumes mid-sequence.
func ExpandSteps(planned *PlannedEntry, config Config, resumeFrom int) []*PlannedEntry {
	if !config.Incremental {
		planned.SyncMetadata = &SyncMetadata{Incremental: false}
		return []*PlannedEntry{planned}
	}

	prevProgress := 0
	if planned.PreviousValues != nil {
		prevProgress = planned.PreviousValues.Progress
	}
	progressDelta := planned.Progress - prevProgress

	metadataChanged := planned.IsCreate()
	if planned.PreviousValues != nil {
		metadataChanged = planned.Status != planned.PreviousValues.Status ||
			planned.Score != planned.PreviousValues.Score ||
			planned.Private != planned.PreviousValues.Private
	}

	var stepNums []int
	if progressDelta > 1 {
		stepNums = append(stepNums, 1, 2)
	} else if progressDelta == 1 {
		stepNums = append(stepNums, 1)
	}
	if metadataChanged {
		stepNums = append(stepNums, 3)
	}
	if len(stepNums) == 0 {
		stepNums = []int{1}
	}
	if resumeFrom < 1 {
		resumeFrom = 1
	}

	var out []*PlannedEntry
	for _, n := range stepNums {
		if n < resumeFrom {
			continue
		}
		clone := *planned
		clone.SyncMetadata = &SyncMetadata{
			Incremental:    true,
			TargetProgress: planned.Progress,
			Step:           n,
			ResumeFromStep: resumeFrom,
		}
		out = append(out, &clone)
	}
	return out
}
