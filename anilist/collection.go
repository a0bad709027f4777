package anilist

import (
	"context"
	"fmt"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/rlalpha49/kenmeisync/sync"
)

// Dispatcher is the minimal pipeline surface this file needs: send
// one query/variables pair, get back the decoded response envelope.
// pipeline.Pipeline.Dispatch satisfies this directly.
type Dispatcher interface {
	Dispatch(ctx context.Context, mediaID int, query string, variables map[string]interface{}) (map[string]interface{}, error)
}

// FetchUserCollection resolves the viewer id and pages through the
// full remote manga list, chunked at chunkSize entries per page
// (spec.md §6), returning a snapshot keyed by media id for the
// planner's matching step to consume.
func FetchUserCollection(ctx context.Context, d Dispatcher, chunkSize int) (map[int]sync.RemoteSnapshotEntry, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}

	viewerID, err := resolveViewerID(ctx, d)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[int]sync.RemoteSnapshotEntry)
	chunk := 1
	for {
		op := GetUserMangaList(viewerID, chunk, chunkSize)
		resp, err := d.Dispatch(ctx, 0, op.Query, op.Variables)
		result := sync.Classify(resp, err)
		if result.Outcome != sync.OutcomeSuccess {
			return nil, fmt.Errorf("fetching manga list chunk %d: %s", chunk, result.Message)
		}

		entries, pageSize := decodeMediaListPage(result.Data)
		for id, entry := range entries {
			snapshot[id] = entry
		}
		if pageSize < chunkSize {
			break // a short page is the last page
		}
		chunk++
	}

	return snapshot, nil
}

func resolveViewerID(ctx context.Context, d Dispatcher) (int, error) {
	op := Viewer()
	resp, err := d.Dispatch(ctx, 0, op.Query, op.Variables)
	result := sync.Classify(resp, err)
	if result.Outcome != sync.OutcomeSuccess {
		return 0, fmt.Errorf("resolving viewer id: %w", core.ErrGraphQLDomain)
	}

	viewer, ok := result.Data["Viewer"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("resolving viewer id: %w", core.ErrMalformedResponse)
	}
	id, ok := viewer["id"].(float64)
	if !ok {
		return 0, fmt.Errorf("resolving viewer id: %w", core.ErrMalformedResponse)
	}
	return int(id), nil
}

func decodeMediaListPage(data map[string]interface{}) (map[int]sync.RemoteSnapshotEntry, int) {
	entries := make(map[int]sync.RemoteSnapshotEntry)

	page, ok := data["Page"].(map[string]interface{})
	if !ok {
		return entries, 0
	}
	list, ok := page["mediaList"].([]interface{})
	if !ok {
		return entries, 0
	}

	for _, raw := range list {
		row, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		media, ok := row["media"].(map[string]interface{})
		if !ok {
			continue
		}
		idFloat, ok := media["id"].(float64)
		if !ok {
			continue
		}
		id := int(idFloat)

		entries[id] = sync.RemoteSnapshotEntry{
			Status:   sync.Status(stringField(row, "status")),
			Progress: intField(row, "progress"),
			Score:    floatField(row, "score"),
			Private:  boolField(row, "private"),
		}
	}

	return entries, len(list)
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]interface{}, key string) int {
	f, _ := m[key].(float64)
	return int(f)
}

func floatField(m map[string]interface{}, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func boolField(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}
