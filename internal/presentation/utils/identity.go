package utils

import (
	"encoding/base64"
	"net/http"
	"time"
)

const (
	CookieNameMemberID = "member_id"
	HeaderMemberToken  = "X-Member-Token"
)

func GetMemberIDFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(CookieNameMemberID)
	if err != nil {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// MemberIDCookie builds the persistent cookie that identifies a browser
// across realtime sessions.
func MemberIDCookie(memberID string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieNameMemberID,
		Value:    base64.StdEncoding.EncodeToString([]byte(memberID)),
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
		SameSite: http.SameSiteLaxMode,
		Secure:   true,
	}
}

func GetMemberIDFromRequest(r *http.Request) string {
	// First try header (for API clients)
	if token := r.Header.Get(HeaderMemberToken); token != "" {
		return token
	}

	// Fall back to cookie (for browsers)
	return GetMemberIDFromCookie(r)
}
