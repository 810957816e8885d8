package v1

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/messenger/internal/auth"
	"github.com/xiaot623/gogo/messenger/internal/chat"
	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/notify"
	"github.com/xiaot623/gogo/messenger/internal/presence"
	"github.com/xiaot623/gogo/messenger/internal/store"
	"github.com/xiaot623/gogo/messenger/tests/helpers"
)

// staticAuth accepts "token-<user>" and "token-<user>:<name>" credentials.
type staticAuth struct{}

func (staticAuth) Authenticate(_ context.Context, credential string) (auth.Identity, error) {
	user, ok := strings.CutPrefix(credential, "token-")
	if !ok || user == "" {
		return auth.Identity{}, fmt.Errorf("%w: bad credential", domain.ErrAuth)
	}
	user, name, _ := strings.Cut(user, ":")
	return auth.Identity{UserID: user, Name: name}, nil
}

type testHandler struct {
	*Handler
	store    *store.SQLiteStore
	notifier *notify.Notifier
	registry *presence.Registry
}

func newTestHandler(t *testing.T) *testHandler {
	t.Helper()
	s := helpers.NewTestSQLiteStore(t)
	registry := presence.NewRegistry()
	notifier := notify.NewNotifier(s, s, registry, nil, nil, time.Second)
	t.Cleanup(notifier.Wait)

	coord := chat.NewCoordinator(chat.Options{
		Authenticator:    staticAuth{},
		Messages:         s,
		Users:            s,
		Presence:         registry,
		Notifier:         notifier,
		MaxContentLength: 200,
	})
	return &testHandler{
		Handler:  NewHandler(coord, s, nil),
		store:    s,
		notifier: notifier,
		registry: registry,
	}
}

// newContext builds an echo context for user acting on path with the given params.
func newContext(e *echo.Echo, method, path, body, user string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(ContextKeyUserID, user)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(append(c.ParamNames(), params[i])...)
		c.SetParamValues(append(c.ParamValues(), params[i+1])...)
	}
	return c, rec
}
