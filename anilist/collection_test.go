package anilist

import (
	"context"
	"testing"

	"github.com/rlalpha49/kenmeisync/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedDispatcher struct {
	responses []map[string]interface{}
	call      int
}

func (d *scriptedDispatcher) Dispatch(_ context.Context, _ int, _ string, _ map[string]interface{}) (map[string]interface{}, error) {
	r := d.responses[d.call]
	d.call++
	return r, nil
}

func viewerResponse(id int) map[string]interface{} {
	return map[string]interface{}{"data": map[string]interface{}{"Viewer": map[string]interface{}{"id": float64(id)}}}
}

func mediaListPage(entries ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, len(entries))
	for i, e := range entries {
		list[i] = e
	}
	return map[string]interface{}{
		"data": map[string]interface{}{
			"Page": map[string]interface{}{"mediaList": list},
		},
	}
}

func mediaEntry(id int, status string, progress int, score float64) map[string]interface{} {
	return map[string]interface{}{
		"media":    map[string]interface{}{"id": float64(id)},
		"status":   status,
		"progress": float64(progress),
		"score":    score,
		"private":  false,
	}
}

func TestFetchUserCollection_SinglePage(t *testing.T) {
	d := &scriptedDispatcher{responses: []map[string]interface{}{
		viewerResponse(7),
		mediaListPage(mediaEntry(100, "CURRENT", 5, 8)),
	}}

	snapshot, err := FetchUserCollection(context.Background(), d, 500)
	require.NoError(t, err)
	require.Contains(t, snapshot, 100)
	assert.Equal(t, sync.StatusCurrent, snapshot[100].Status)
	assert.Equal(t, 5, snapshot[100].Progress)
	assert.Equal(t, float64(8), snapshot[100].Score)
}

func TestFetchUserCollection_PagesUntilShortPage(t *testing.T) {
	d := &scriptedDispatcher{responses: []map[string]interface{}{
		viewerResponse(7),
		mediaListPage(mediaEntry(1, "CURRENT", 1, 0), mediaEntry(2, "CURRENT", 1, 0)),
		mediaListPage(mediaEntry(3, "CURRENT", 1, 0)),
	}}

	snapshot, err := FetchUserCollection(context.Background(), d, 2)
	require.NoError(t, err)
	assert.Len(t, snapshot, 3)
}
