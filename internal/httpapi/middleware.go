package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shopfront/checkout/internal/auth"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	sessionKeyKey contextKey = "session_key"
)

const sessionCookie = "storefront_session"

// SessionMiddleware resolves the checkout session key from the session
// cookie, minting one for first-time visitors. Every cart and checkout
// handler keys its state off this value.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionKey := ""
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			sessionKey = cookie.Value
		}
		if sessionKey == "" {
			sessionKey = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sessionKey,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), sessionKeyKey, sessionKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the optional customer identity from the
// X-User-ID header (validated upstream by the auth proxy). Absence is fine:
// guest checkout is permitted everywhere.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			r = r.WithContext(auth.WithUser(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getSessionKey(ctx context.Context) string {
	if key, ok := ctx.Value(sessionKeyKey).(string); ok {
		return key
	}
	return ""
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
