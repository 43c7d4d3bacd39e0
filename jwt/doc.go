// Package jwt issues and decodes the HS256 access and refresh tokens used by lovelace.
//
// Both token types share one secret; the "typ" claim keeps them from being used interchangeably.
package jwt
