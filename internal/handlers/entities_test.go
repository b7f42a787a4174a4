package handlers_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/l2cache/internal/app"
	"github.com/charlesng35/l2cache/internal/handlers/testutil"
	"github.com/charlesng35/l2cache/pkg/response"
)

type entityPayload struct {
	Class  string            `json:"class"`
	ID     string            `json:"id"`
	Fields map[string]any    `json:"fields"`
	Refs   map[string]string `json:"refs"`
}

type containsPayload struct {
	Region   string `json:"region"`
	Contains bool   `json:"contains"`
}

func decodeEntity(t *testing.T, env *testutil.Env, method, path string, body any, status int) entityPayload {
	t.Helper()
	w := env.Request(method, path, body)
	require.Equal(t, status, w.Code, w.Body.String())
	var out entityPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
	return out
}

func TestEntityGetIsServedFromCacheOnSecondRequest(t *testing.T) {
	env := testutil.NewEnv(t)

	before := env.Queries()
	info := decodeEntity(t, env, http.MethodGet, "/api/entities/AttractionInfo/info-0", nil, http.StatusOK)
	require.Equal(t, "AttractionContactInfo", info.Class)
	require.Equal(t, "0000-0000", info.Fields["fone"])
	require.Equal(t, "attraction-0", info.Refs["attraction"])
	require.Equal(t, before+2, env.Queries())

	again := decodeEntity(t, env, http.MethodGet, "/api/entities/AttractionContactInfo/info-0", nil, http.StatusOK)
	require.Equal(t, info, again)
	require.Equal(t, before+2, env.Queries())
}

func TestEntityGetErrors(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/entities/AttractionLocationInfo/info-0", nil)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/entities/AttractionInfo/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/entities/Unknown/1", nil)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "mapping.unmapped_type", resp.Error.Code)
}

func TestEntityCreatePutsEveryView(t *testing.T) {
	env := testutil.NewEnv(t)

	created := decodeEntity(t, env, http.MethodPost, "/api/entities/AttractionLocationInfo", map[string]any{
		"fields": map[string]any{"address": "Rua Augusta"},
		"refs":   map[string]string{"attraction": "attraction-5"},
	}, http.StatusCreated)
	require.NotEmpty(t, created.ID)

	for _, class := range []string{"AttractionInfo", "AttractionLocationInfo"} {
		w := env.Request(http.MethodGet, "/api/cache/entities/"+class+"/"+created.ID, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var contains containsPayload
		testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &contains)
		require.True(t, contains.Contains, class)
		require.Equal(t, "attraction_info", contains.Region)
	}

	w := env.Request(http.MethodPost, "/api/entities/Attraction", map[string]any{
		"id":     "attraction-0",
		"fields": map[string]any{"name": "Duplicate"},
	})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/entities/Attraction", map[string]any{
		"fields": map[string]any{"color": "blue"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/entities/Attraction", map[string]any{
		"id":     strings.Repeat("a", 65),
		"fields": map[string]any{"name": "Too long"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Equal(t, "id must be at most 64 characters", testutil.DecodeResponse(t, w).Error.Message)
}

func TestEntityCollectionIsCachedAndEvictedOnUpdate(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/entities/Attraction/attraction-0/collections/infos", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, 1, resp.Meta.Total)

	before := env.Queries()
	w = env.Request(http.MethodGet, "/api/entities/Attraction/attraction-0/collections/infos", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, before, env.Queries())

	moved := decodeEntity(t, env, http.MethodPatch, "/api/entities/AttractionContactInfo/info-0", map[string]any{
		"refs": map[string]string{"attraction": "attraction-1"},
	}, http.StatusOK)
	require.Equal(t, "attraction-1", moved.Refs["attraction"])

	w = env.Request(http.MethodGet, "/api/cache/collections/Attraction/infos/attraction-0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var contains containsPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &contains)
	require.False(t, contains.Contains)
	require.Equal(t, "attraction__infos", contains.Region)

	w = env.Request(http.MethodGet, "/api/entities/Attraction/attraction-1/collections/infos", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 2, testutil.DecodeResponse(t, w).Meta.Total)
}

func TestEntityDeleteRemovesRowsAndCache(t *testing.T) {
	env := testutil.NewEnv(t)

	decodeEntity(t, env, http.MethodGet, "/api/entities/AttractionInfo/info-1", nil, http.StatusOK)

	w := env.Request(http.MethodDelete, "/api/entities/AttractionContactInfo/info-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	ok, err := env.Cache.ContainsEntity(t.Context(), "AttractionInfo", "info-1")
	require.NoError(t, err)
	require.False(t, ok)

	w = env.Request(http.MethodGet, "/api/entities/AttractionInfo/info-1", nil)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestEntityListCacheableQuery(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/entities/AttractionInfo?cacheable=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first []entityPayload
	resp := testutil.DecodeResponse(t, w)
	testutil.DecodeInto(t, resp.Data, &first)
	require.Len(t, first, 4)
	require.Equal(t, "AttractionContactInfo", first[0].Class)
	require.Equal(t, "AttractionLocationInfo", first[2].Class)

	before := env.Queries()
	w = env.Request(http.MethodGet, "/api/entities/AttractionInfo?cacheable=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second []entityPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &second)
	require.Equal(t, first, second)
	require.Equal(t, before, env.Queries())

	w = env.Request(http.MethodGet, "/api/entities/Attraction?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var window []entityPayload
	resp = testutil.DecodeResponse(t, w)
	testutil.DecodeInto(t, resp.Data, &window)
	require.Len(t, window, 2)
	require.Equal(t, "attraction-1", window[0].ID)
	require.Equal(t, response.Meta{Total: 2, Offset: 1, Limit: 2}, *resp.Meta)
}

func TestEntityListRejectsUndeclaredQueryRegion(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Cache.QueryRegions = []string{"reports"}
	})

	for _, region := range []string{"adhoc", "entity:attraction"} {
		w := env.Request(http.MethodGet, "/api/entities/AttractionInfo?cacheable=true&region="+url.QueryEscape(region), nil)
		require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
		require.Equal(t, "cache.region_not_found", testutil.DecodeResponse(t, w).Error.Code)
		require.False(t, env.Cache.HasQueryRegion(region))
	}

	w := env.Request(http.MethodGet, "/api/entities/AttractionInfo?cacheable=true&region=reports", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	before := env.Queries()
	w = env.Request(http.MethodGet, "/api/entities/AttractionInfo?cacheable=true&region=reports", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, before, env.Queries())

	w = env.Request(http.MethodDelete, "/api/cache/queries/adhoc", nil)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	w = env.Request(http.MethodDelete, "/api/cache/queries/reports", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}
