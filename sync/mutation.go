package sync

import (
	"fmt"
	"strings"
)

// Variables is the GraphQL variable map built for one mutation
// dispatch. mediaId is always present; the rest are included only
// when the minimization/step-expansion rules of spec.md §4.B call
// for them.
type Variables struct {
	MediaID  int
	Status   *Status
	Progress *int
	Score    *float64
	Private  *bool
}

// BuildVariables computes the minimal variable set for one step of a
// planned entry, per spec.md §4.B. step is 0 for non-incremental
// entries (the single, full mutation).
func BuildVariables(p *PlannedEntry, step int) Variables {
	v := Variables{MediaID: p.MediaID}

	if p.SyncMetadata != nil && p.SyncMetadata.Incremental && step > 0 {
		applyIncrementalStep(p, step, &v)
		return v
	}

	if p.IsCreate() {
		applyCreate(p, &v)
		return v
	}

	applyUpdate(p, &v)
	return v
}

func applyCreate(p *PlannedEntry, v *Variables) {
	status := p.Status
	v.Status = &status

	if p.Progress >= 0 {
		progress := p.Progress
		v.Progress = &progress
	}
	if p.Score > 0 {
		score := p.Score
		v.Score = &score
	}
	if p.Private {
		private := p.Private
		v.Private = &private
	}
}

func applyUpdate(p *PlannedEntry, v *Variables) {
	prev := p.PreviousValues

	if p.Status != prev.Status {
		status := p.Status
		v.Status = &status
	}
	if p.Progress != prev.Progress {
		progress := p.Progress
		v.Progress = &progress
	}
	if p.Score != prev.Score {
		score := p.Score
		v.Score = &score
	}
	// Private is included whenever explicitly set, distinguishing
	// unset-and-false from true (spec.md §4.B).
	if p.Private {
		private := p.Private
		v.Private = &private
	}
}

// applyIncrementalStep overrides the minimization rules with the
// three fixed step semantics from spec.md §4.B.
func applyIncrementalStep(p *PlannedEntry, step int, v *Variables) {
	switch step {
	case 1:
		var progress int
		if p.IsCreate() {
			progress = 1
		} else {
			progress = p.PreviousValues.Progress + 1
		}
		v.Progress = &progress

	case 2:
		progress := p.Progress
		v.Progress = &progress

	case 3:
		changed := p.IsCreate() || p.Status != p.PreviousValues.Status
		if changed {
			status := p.Status
			v.Status = &status
		}
		scoreChanged := p.Score != 0 && (p.IsCreate() || p.Score != p.PreviousValues.Score)
		if scoreChanged {
			score := p.Score
			v.Score = &score
		}
		if p.Private {
			private := p.Private
			v.Private = &private
		}
	}
}

// BuildMutation generates GraphQL mutation text declaring exactly the
// variables present in v. mediaId is always required.
func BuildMutation(v Variables) string {
	var decl, args strings.Builder

	decl.WriteString("$mediaId: Int")
	args.WriteString("mediaId: $mediaId")

	if v.Status != nil {
		decl.WriteString(", $status: MediaListStatus")
		args.WriteString(", status: $status")
	}
	if v.Progress != nil {
		decl.WriteString(", $progress: Int")
		args.WriteString(", progress: $progress")
	}
	if v.Score != nil {
		decl.WriteString(", $score: Float")
		args.WriteString(", score: $score")
	}
	if v.Private != nil {
		decl.WriteString(", $private: Boolean")
		args.WriteString(", private: $private")
	}

	return fmt.Sprintf(
		"mutation(%s) { SaveMediaListEntry(%s) { id } }",
		decl.String(), args.String(),
	)
}

// ToMap flattens Variables into the wire-ready map keyed by GraphQL
// variable name, including only populated fields.
func (v Variables) ToMap() map[string]interface{} {
	m := map[string]interface{}{"mediaId": v.MediaID}
	if v.Status != nil {
		m["status"] = string(*v.Status)
	}
	if v.Progress != nil {
		m["progress"] = *v.Progress
	}
	if v.Score != nil {
		m["score"] = *v.Score
	}
	if v.Private != nil {
		m["private"] = *v.Private
	}
	return m
}

// BuildDeleteVariables builds the variable map for a delete mutation.
func BuildDeleteVariables(remoteEntryID int) map[string]interface{} {
	return map[string]interface{}{"id": remoteEntryID}
}

// BuildDeleteMutation is the fixed mutation text for deleting a
// media-list entry.
func BuildDeleteMutation() string {
	return "mutation($id: Int) { DeleteMediaListEntry(id: $id) { deleted } }"
}
