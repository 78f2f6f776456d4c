package cache

import (
	"net/url"
	"strconv"

	"github.com/hongminglow/store-rating-be/internal/models"
)

const (
	// StoresNamespace prefixes every store listing entry.
	StoresNamespace = "stores:"
	// storesGenerationKey lives outside the namespace so prefix deletes keep it.
	storesGenerationKey = "meta:stores:generation"

	anonymous = "anon"
	allStores = "all"
)

// StoresKey is the cache key of one store listing at a namespace generation.
// Non-empty searches are query-escaped and tagged so they never collide with
// the unfiltered listing or with each other.
func StoresKey(generation int64, q models.AggregateQuery) string {
	q = q.Normalized()

	user := anonymous
	if q.RequesterID > 0 {
		user = strconv.FormatInt(q.RequesterID, 10)
	}
	search := allStores
	if q.Search != "" {
		search = "q." + url.QueryEscape(q.Search)
	}

	return StoresNamespace +
		"v" + strconv.FormatInt(generation, 10) +
		":user=" + user +
		":search=" + search +
		":sort=" + q.SortField +
		":order=" + q.SortOrder
}
