package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	sessionCookieName = "kanban_session"
	sessionIDValue    = "id"
	ctxSessionKey     = "kanban.session"
)

// newCookieStore signs the session cookie with secret.
func newCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// SessionMiddleware binds the request to the viewer session named by the
// session cookie. A missing or unreadable cookie starts a new session.
func SessionMiddleware(registry *Sessions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := session.Get(sessionCookieName, c)
			if sess == nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "session store unavailable").SetInternal(err)
			}
			id, _ := sess.Values[sessionIDValue].(string)
			if id == "" {
				id = uuid.NewString()
				sess.Values[sessionIDValue] = id
				if err := sess.Save(c.Request(), c.Response()); err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "save session").SetInternal(err)
				}
			}
			c.Set(ctxSessionKey, registry.acquire(id))
			return next(c)
		}
	}
}

func currentSession(c echo.Context) *viewerSession {
	vs, _ := c.Get(ctxSessionKey).(*viewerSession)
	return vs
}
