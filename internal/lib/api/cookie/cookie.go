// Package cookie owns the refresh-token cookie contract: the opaque
// refresh token travels only here, never in a JSON body.
package cookie

import (
	"net/http"
	"time"
)

const RefreshName = "refreshToken"

// SetRefresh writes the refresh cookie scoped to the token's lifetime.
func SetRefresh(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshName,
		Value:    token,
		Path:     "/auth",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearRefresh expires the refresh cookie immediately.
func ClearRefresh(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Refresh reads the refresh token from the request, if present.
func Refresh(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
