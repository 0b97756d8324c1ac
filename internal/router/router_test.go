package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Facats/slotwatcherss/internal/handler"
	"github.com/Facats/slotwatcherss/internal/lifecycle"
	"github.com/Facats/slotwatcherss/internal/reconcile"
	"github.com/Facats/slotwatcherss/internal/repository"
	"github.com/Facats/slotwatcherss/internal/sweep"
	"github.com/Facats/slotwatcherss/internal/tier"
	"github.com/Facats/slotwatcherss/internal/utils"
)

type nopRecon struct{}

func (nopRecon) Grant(context.Context, string, string, tier.Name) (reconcile.Grant, error) {
	return reconcile.Grant{}, nil
}
func (nopRecon) Undo(context.Context, string, string, reconcile.Grant) reconcile.Report {
	return reconcile.Report{}
}
func (nopRecon) Revoke(context.Context, string, string, string, string) reconcile.Report {
	return reconcile.Report{}
}

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	engine := lifecycle.New(repository.NewMemoryStore(), nopRecon{}, lifecycle.Options{})
	e := echo.New()
	RegisterRoutes(e)
	RegisterAPI(e, API{
		Slots:      handler.NewSlotHandler(engine, sweep.New(engine, time.Minute, nil)),
		Broadcasts: handler.NewBroadcastHandler(engine),
		Stats:      handler.NewStatsHandler(engine),
		JWTSecret:  "secret",
	})
	return e
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken("secret", "caller", role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func send(e *echo.Echo, method, path, tok, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestPublicRoutes(t *testing.T) {
	e := newServer(t)
	assert.Equal(t, http.StatusOK, send(e, http.MethodGet, "/healthz", "", ""))
	assert.Equal(t, http.StatusOK, send(e, http.MethodGet, "/metrics", "", ""))
}

func TestRoleGates(t *testing.T) {
	e := newServer(t)
	admin, bot := token(t, "ADMIN"), token(t, "BOT")
	grant := `{"holder_id":"u1","tier":"tier4","resource_ref":"c1"}`

	assert.Equal(t, http.StatusUnauthorized, send(e, http.MethodPost, "/v1/slots", "", grant))
	assert.Equal(t, http.StatusForbidden, send(e, http.MethodPost, "/v1/slots", bot, grant))
	assert.Equal(t, http.StatusCreated, send(e, http.MethodPost, "/v1/slots", admin, grant))

	assert.Equal(t, http.StatusOK, send(e, http.MethodGet, "/v1/slots/u1", bot, ""))
	assert.Equal(t, http.StatusOK, send(e, http.MethodPost, "/v1/broadcasts", bot,
		`{"holder_id":"u1","resource_ref":"c1","message_ref":"m"}`))
	assert.Equal(t, http.StatusOK, send(e, http.MethodGet, "/v1/stats", bot, ""))
	assert.Equal(t, http.StatusForbidden, send(e, http.MethodPost, "/v1/admin/sweep", bot, ""))
	assert.Equal(t, http.StatusOK, send(e, http.MethodPost, "/v1/admin/sweep", admin, ""))
}
