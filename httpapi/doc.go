// Package httpapi serves the authentication endpoints under /api/auth on a net/http ServeMux.
//
// Access tokens travel in response bodies and Authorization headers. Refresh tokens only ever
// travel in an HttpOnly cookie configured by lovelace.CookieConfig. Errors use the JSON body
// from internal/httperr.
package httpapi
