package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/village-mind/internal/config"
	"github.com/talgya/village-mind/internal/engine"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/townevent"
	"github.com/talgya/village-mind/internal/world"
)

const testKey = "s3cret"

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *engine.Town) {
	t.Helper()
	cfg := config.Default()
	cfg.Awareness.GlitchThreshold = 1
	cfg.API.AdminKey = testKey
	if mutate != nil {
		mutate(cfg)
	}
	town, err := engine.NewTown(cfg)
	require.NoError(t, err)
	t.Cleanup(town.Close)
	return NewServer(town, cfg.API), town
}

func do(t *testing.T, s *Server, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func npcPath(id npc.EntityID) string {
	return "/api/v1/npcs/" + strconv.FormatUint(uint64(id), 10)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	s, town := newTestServer(t, nil)
	_, err := town.AddNPC(false)
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/v1/status", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[engine.Status](t, rec)
	assert.Equal(t, 1, st.Villagers)
	assert.Equal(t, 1, st.Unaware)
}

func TestSpawnAndGetVillager(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/npcs/", engine.SpawnSpec{
		Name:     "Edda",
		Position: &world.Vec2{X: 10, Y: 10},
		Aware:    true,
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[engine.VillagerInfo](t, rec)
	assert.Equal(t, "Edda", created.Name)
	assert.Equal(t, "aware", created.Awareness)

	rec = do(t, s, http.MethodGet, npcPath(created.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[engine.VillagerInfo](t, rec)
	assert.Equal(t, created.ID, got.ID)

	rec = do(t, s, http.MethodGet, "/api/v1/npcs/", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]engine.VillagerInfo](t, rec), 1)
}

func TestSpawnRejectsBadPersonality(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/npcs/", map[string]any{
		"personality": map[string]float64{"openness": 3},
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpawnAtCapacity(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.MaxNPCs = 1 })
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/v1/npcs/", engine.SpawnSpec{}, true).Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/v1/npcs/", engine.SpawnSpec{}, true).Code)
}

func TestUnknownVillager(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/npcs/99", nil, false).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/npcs/abc", nil, false).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/v1/npcs/99", nil, true).Code)
}

func TestAdminAuth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/api/v1/npcs/", engine.SpawnSpec{}, false).Code)

	disabled, _ := newTestServer(t, func(c *config.Config) { c.API.AdminKey = "" })
	assert.Equal(t, http.StatusForbidden, do(t, disabled, http.MethodPost, "/api/v1/npcs/", engine.SpawnSpec{}, true).Code)
	// Reads stay public.
	assert.Equal(t, http.StatusOK, do(t, disabled, http.MethodGet, "/api/v1/status", nil, false).Code)
}

func TestRemoveAndResetVillager(t *testing.T) {
	s, town := newTestServer(t, nil)
	id, err := town.AddNPC(true)
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, npcPath(id)+"/reset", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodGet, npcPath(id)+"/awareness", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unaware", decode[map[string]any](t, rec)["awareness"])

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, npcPath(id), nil, true).Code)
	assert.Equal(t, 0, town.Population())
}

func TestVotingFlow(t *testing.T) {
	s, town := newTestServer(t, nil)
	a, err := town.AddNPC(false)
	require.NoError(t, err)
	b, err := town.AddNPC(false)
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/v1/events/", map[string]any{"description": "harvest festival", "in_ticks": 2}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ev := decode[townevent.Event](t, rec)
	assert.Equal(t, uint64(2), ev.Deadline)

	votes := "/api/v1/events/" + ev.ID + "/votes"
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, votes, map[string]any{"voter": a, "choice": "yes"}, true).Code)
	rec = do(t, s, http.MethodPost, votes, map[string]any{"voter": b, "choice": "no"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	provisional := decode[townevent.Tally](t, rec)
	assert.False(t, provisional.Final)
	assert.Equal(t, 2, provisional.Total)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, votes, map[string]any{"voter": 99, "choice": "yes"}, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, votes, map[string]any{"voter": a, "choice": ""}, true).Code)

	town.Step()
	town.Step()

	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, votes, map[string]any{"voter": a, "choice": "no"}, true).Code)
	rec = do(t, s, http.MethodGet, "/api/v1/events/"+ev.ID+"/tally", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decode[townevent.Tally](t, rec)
	assert.True(t, final.Final)
	assert.Equal(t, "no", final.Winner) // Tie broken by smallest choice
}

func TestProposeValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/v1/events/", map[string]any{"description": "x"}, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/v1/events/", map[string]any{"description": " ", "in_ticks": 5}, true).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/events/nope/tally", nil, false).Code)
}

func TestCancelEvent(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/events/", map[string]any{"description": "new well", "deadline": 100}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	ev := decode[townevent.Event](t, rec)

	rec = do(t, s, http.MethodPost, "/api/v1/events/"+ev.ID+"/cancel", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	tally := decode[townevent.Tally](t, rec)
	assert.True(t, tally.Cancelled)

	rec = do(t, s, http.MethodGet, "/api/v1/events/", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]townevent.Event](t, rec), 1)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.API.RateLimit = 0.001
		c.API.Burst = 2
	})
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/status", nil, false).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/status", nil, false).Code)
	rec := do(t, s, http.MethodGet, "/api/v1/status", nil, false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", clientIP(req))

	req.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", clientIP(req))
}
