package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Facats/slotwatcherss/internal/lifecycle"
	"github.com/Facats/slotwatcherss/internal/reconcile"
	"github.com/Facats/slotwatcherss/internal/repository"
	"github.com/Facats/slotwatcherss/internal/sweep"
	"github.com/Facats/slotwatcherss/internal/tier"
)

type stubRecon struct{ grantErr error }

func (s *stubRecon) Grant(_ context.Context, _, _ string, t tier.Name) (reconcile.Grant, error) {
	return reconcile.Grant{GrantRef: "role-" + string(t), OriginalLabel: "general"}, s.grantErr
}

func (s *stubRecon) Undo(context.Context, string, string, reconcile.Grant) reconcile.Report {
	return reconcile.Report{}
}

func (s *stubRecon) Revoke(context.Context, string, string, string, string) reconcile.Report {
	return reconcile.Report{}
}

type env struct {
	e     *echo.Echo
	recon *stubRecon
	now   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ev := &env{e: echo.New(), recon: &stubRecon{}, now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	engine := lifecycle.New(repository.NewMemoryStore(), ev.recon, lifecycle.Options{
		Clock: func() time.Time { return ev.now },
	})
	sh := NewSlotHandler(engine, sweep.New(engine, time.Minute, nil))
	bh := NewBroadcastHandler(engine)
	st := NewStatsHandler(engine)

	ev.e.POST("/v1/slots", sh.Grant)
	ev.e.GET("/v1/slots", sh.List)
	ev.e.GET("/v1/slots/:holder_id", sh.Query)
	ev.e.DELETE("/v1/slots/:holder_id", sh.Remove)
	ev.e.DELETE("/v1/admin/slots/:slot_id", sh.Delete)
	ev.e.POST("/v1/admin/sweep", sh.Sweep)
	ev.e.POST("/v1/broadcasts", bh.Attempt)
	ev.e.GET("/v1/stats", st.Get)
	return ev
}

func (ev *env) call(method, path, body string) (int, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ev.e.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestGrantQueryRemove(t *testing.T) {
	ev := newEnv(t)

	code, body := ev.call(http.MethodPost, "/v1/slots", `{"holder_id":"u1","display_name":"Ann","tier":"tier1","resource_ref":"c1"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "tier1", body["tier"])
	assert.Equal(t, "2024-06-08T09:00:00Z", body["expires_at"])

	code, body = ev.call(http.MethodPost, "/v1/slots", `{"holder_id":"u1","tier":"tier2","resource_ref":"c1"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate_slot", body["error"])

	code, body = ev.call(http.MethodGet, "/v1/slots/u1", "")
	require.Equal(t, http.StatusOK, code)
	quota := body["quota"].(map[string]any)
	assert.EqualValues(t, 1, quota["remaining"])
	assert.Equal(t, "Ann", body["holder"].(map[string]any)["display_name"])

	code, body = ev.call(http.MethodGet, "/v1/slots", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = ev.call(http.MethodDelete, "/v1/slots/u1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "manual", body["revoke_reason"])

	code, body = ev.call(http.MethodDelete, "/v1/slots/u1", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no_active_slot", body["error"])
}

func TestGrantErrors(t *testing.T) {
	ev := newEnv(t)

	code, body := ev.call(http.MethodPost, "/v1/slots", `{"holder_id":"u1","tier":"gold","resource_ref":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_tier", body["error"])

	code, _ = ev.call(http.MethodPost, "/v1/slots", `{"holder_id":"u1"`)
	assert.Equal(t, http.StatusBadRequest, code)

	ev.recon.grantErr = errors.New("platform down")
	code, body = ev.call(http.MethodPost, "/v1/slots", `{"holder_id":"u1","tier":"tier1","resource_ref":"c1"}`)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "authorization_unavailable", body["error"])

	code, _ = ev.call(http.MethodGet, "/v1/slots/u1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBroadcastDecisions(t *testing.T) {
	ev := newEnv(t)
	code, _ := ev.call(http.MethodPost, "/v1/slots", `{"holder_id":"u1","tier":"tier3","resource_ref":"c1"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := ev.call(http.MethodPost, "/v1/broadcasts", `{"holder_id":"u1","resource_ref":"c1","message_ref":"m1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "allowed", body["decision"])

	ev.now = ev.now.Add(time.Hour)
	code, body = ev.call(http.MethodPost, "/v1/broadcasts", `{"holder_id":"u1","resource_ref":"c1","message_ref":"m2"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "over_limit", body["decision"])

	code, body = ev.call(http.MethodPost, "/v1/broadcasts", `{"holder_id":"u1","resource_ref":"c1","message_ref":"m3"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no_active_slot", body["error"])

	code, _ = ev.call(http.MethodPost, "/v1/broadcasts", `{"holder_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSweepAndStats(t *testing.T) {
	ev := newEnv(t)
	for _, b := range []string{
		`{"holder_id":"a","tier":"tier1","resource_ref":"c1"}`,
		`{"holder_id":"b","tier":"partnered","resource_ref":"c2"}`,
	} {
		code, _ := ev.call(http.MethodPost, "/v1/slots", b)
		require.Equal(t, http.StatusCreated, code)
	}

	code, body := ev.call(http.MethodGet, "/v1/stats?within=192h", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["active_slots"])
	assert.EqualValues(t, 1, body["expiring_soon"])

	code, _ = ev.call(http.MethodGet, "/v1/stats?within=-1h", "")
	assert.Equal(t, http.StatusBadRequest, code)

	ev.now = ev.now.Add(7*24*time.Hour + time.Second)
	code, body = ev.call(http.MethodPost, "/v1/admin/sweep", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["expired"])

	code, body = ev.call(http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["active_slots"])
	assert.EqualValues(t, 2, body["total_slots"])
}

func TestAdminDelete(t *testing.T) {
	ev := newEnv(t)
	_, body := ev.call(http.MethodPost, "/v1/slots", `{"holder_id":"a","tier":"tier4","resource_ref":"c1"}`)
	id := body["id"].(string)

	code, _ := ev.call(http.MethodDelete, "/v1/admin/slots/"+id, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, body = ev.call(http.MethodDelete, "/v1/admin/slots/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "slot_not_found", body["error"])
}

func TestErrorBodyStoreUnavailable(t *testing.T) {
	status, code, _ := errorBody(lifecycle.ErrStoreUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "store_unavailable", code)
}
