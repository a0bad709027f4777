package anilist

import "fmt"

// Operation builds the GraphQL query text and variables for one of
// the five external interfaces from spec.md §6. Callers dispatch the
// result through a pipeline.Pipeline, never directly through Client.
type Operation struct {
	Query     string
	Variables map[string]interface{}
}

const searchMangaQuery = `
query ($search: String) {
  Page(page: 1, perPage: 10) {
    media(search: $search, type: MANGA) {
      id
      title { romaji english native }
      coverImage { large }
    }
  }
}`

// SearchManga builds the cacheable fuzzy-title lookup. Callers should
// dispatch this through pipeline.Pipeline.Search, not Dispatch, so it
// is served from the read cache.
func SearchManga(term string) Operation {
	return Operation{
		Query:     searchMangaQuery,
		Variables: map[string]interface{}{"search": term},
	}
}

const getMangaByIDsQuery = `
query ($ids: [Int]) {
  Page(page: 1, perPage: 50) {
    media(id_in: $ids, type: MANGA) {
      id
      title { romaji english native }
      coverImage { large }
    }
  }
}`

// GetMangaByIDs resolves a batch of media ids in one request.
func GetMangaByIDs(ids []int) Operation {
	return Operation{
		Query:     getMangaByIDsQuery,
		Variables: map[string]interface{}{"ids": ids},
	}
}

const getUserMangaListQuery = `
query ($userId: Int, $chunk: Int, $perChunk: Int) {
  Page {
    mediaList(userId: $userId, type: MANGA, chunk: $chunk, perChunk: $perChunk) {
      media { id }
      status
      progress
      score
      private
    }
  }
}`

// GetUserMangaList builds one page of the user's existing remote
// collection, chunked per core.AniListConfig.ChunkSize (spec.md §6).
func GetUserMangaList(userID, chunk, perChunk int) Operation {
	return Operation{
		Query: getUserMangaListQuery,
		Variables: map[string]interface{}{
			"userId":   userID,
			"chunk":    chunk,
			"perChunk": perChunk,
		},
	}
}

const viewerQuery = `
query {
  Viewer { id name }
}`

// Viewer resolves the authenticated user's id, needed before paging
// through GetUserMangaList.
func Viewer() Operation {
	return Operation{Query: viewerQuery}
}

// OperationName returns the operation name of one of this package's
// read queries (searchManga, getMangaByIds, getUserMangaList, Viewer),
// or "unknown(N bytes)" for any other query text. This package builds
// no mutation text: updateMangaEntry/deleteMangaEntry come from the
// sync package's mutation builder (sync.BuildMutation /
// sync.BuildDeleteMutation), so that wire shape lives in one place.
func OperationName(op Operation) string {
	switch op.Query {
	case searchMangaQuery:
		return "searchManga"
	case getMangaByIDsQuery:
		return "getMangaByIds"
	case getUserMangaListQuery:
		return "getUserMangaList"
	case viewerQuery:
		return "Viewer"
	default:
		return fmt.Sprintf("unknown(%d bytes)", len(op.Query))
	}
}
