package api

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/safar/go-stock-ledger/internal/models"
)

const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"
	headerUserRole = "X-User-Role"

	sessionCookie = "session_id"

	maxUserIDLen = 64
)

type ctxKey int

const (
	actorKey ctxKey = iota
	sessionKey
)

func actorFrom(ctx context.Context) models.Actor {
	actor, _ := ctx.Value(actorKey).(models.Actor)
	return actor
}

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

// clientIP prefers the first X-Forwarded-For hop when it parses as an
// address and falls back to the peer address otherwise.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticated resolves the caller from the gateway headers. Requests
// without a user id are rejected.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(headerUserID))
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if utf8.RuneCountInString(userID) > maxUserIDLen {
			respondError(w, http.StatusUnauthorized, "invalid user id")
			return
		}

		actor := models.Actor{
			ID:        userID,
			Name:      strings.TrimSpace(r.Header.Get(headerUserName)),
			Role:      strings.TrimSpace(r.Header.Get(headerUserRole)),
			IPAddress: clientIP(r),
		}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// requireRole admits admins everywhere and staff only where role is Staff.
func (s *Server) requireRole(role string, next http.HandlerFunc) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r.Context())

		allowed := actor.IsAdmin()
		if role == models.RoleStaff {
			allowed = actor.IsStaff()
		}
		if !allowed {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	})
}

// withSession attaches the session id, issuing a fresh cookie when the
// request carries none or an unparseable one.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sid string
		if c, err := r.Cookie(sessionCookie); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				sid = c.Value
			}
		}
		if sid == "" {
			sid = uuid.NewString()
			s.setSessionCookie(w, sid, 0)
		}

		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sid)))
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sid string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", clientIP(r),
		)
	})
}
