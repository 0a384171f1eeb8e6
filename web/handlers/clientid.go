package web

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

const clientIDCookieName = "cuview-client"

// getClientID returns a stable identifier for the browser using a cookie, setting a new random one
// when it is missing. Must be called before anything is written to w.
func getClientID(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(clientIDCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	identifier := r.RemoteAddr
	var randomBytes [16]byte
	if _, err := rand.Read(randomBytes[:]); err == nil {
		identifier = hex.EncodeToString(randomBytes[:])
	}
	http.SetCookie(w, &http.Cookie{
		Name:     clientIDCookieName,
		Value:    identifier,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	})
	return identifier
}
