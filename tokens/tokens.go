package tokens

import (
	"golang.org/x/oauth2"
)

// Storage keys, one value each, mirroring the portal's origin-scoped storage layout
const (
	KeyTokens  = "authTokens"
	KeyProfile = "userData"
)

// Pair is the access/refresh pair issued by /auth/jwt/create/ and rotated by /auth/jwt/refresh/.
// Both values are opaque bearer strings; expiry lives inside the access token and is only
// discovered through a 401.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Complete reports whether both halves are present
func (p Pair) Complete() bool {
	return p.Access != "" && p.Refresh != ""
}

// OAuth2 exposes the pair as a bearer token, used to write the Authorization header
func (p Pair) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.Access,
		RefreshToken: p.Refresh,
		TokenType:    "Bearer",
	}
}

// Backend is a synchronous key/value store. Get returns ok=false for a key that was never set.
type Backend interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Delete(keys ...string) error
}
