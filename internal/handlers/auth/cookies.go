package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	AccessCookieName  = "auth_token"
	RefreshCookieName = "refresh_token"
)

// authCookieNames is every cookie name we have ever stored a token under.
// Logout clears them all to defend against residual cookies from prior
// implementations.
var authCookieNames = []string{
	AccessCookieName,
	RefreshCookieName,
	"accessToken",
	"refreshToken",
	"token",
}

func CreateCookie(name string, value string, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name string, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func clearAuthCookies(c echo.Context) {
	for _, name := range authCookieNames {
		c.SetCookie(DeleteCookie(name, "/"))
	}
}
