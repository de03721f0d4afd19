package tokens

import (
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-security-portal/internal/utils"
	"github.com/jrsteele09/go-security-portal/users"
)

// ProfileFromAccess reads the profile claims carried by an access token. The signature and
// expiry are not checked: the result only refreshes the cached profile after a token rotation,
// the backend stays the authority on both.
func ProfileFromAccess(access string) (*users.User, error) {
	token, _, err := jwtlib.NewParser().ParseUnverified(access, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("[tokens ProfileFromAccess] %w", err)
	}
	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("[tokens ProfileFromAccess] unexpected claims type")
	}

	user := &users.User{}
	if id, ok := claims["user_id"].(float64); ok {
		user.ID = int64(id)
	}
	user.Email, _ = claims["email"].(string)
	user.Username, _ = claims["username"].(string)
	user.FirstName, _ = claims["first_name"].(string)
	user.LastName, _ = claims["last_name"].(string)
	user.IsStaff, _ = claims["is_staff"].(bool)
	user.IsSuperuser, _ = claims["is_superuser"].(bool)
	if groups, ok := claims["groups"].([]any); ok {
		user.Groups = utils.ToStringSlice(groups)
	}
	return user, nil
}
