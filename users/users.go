package users

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/jrsteele09/go-security-portal/internal/utils"
)

// GroupName is a backend role group a staff account can belong to
type GroupName string

const (
	GroupMainAdmin          GroupName = "Main Admin"
	GroupFullAccessAdmin    GroupName = "Full Access Admin"
	GroupPartialAccessAdmin GroupName = "Partial Access Admin"
)

// User is the profile snapshot returned by /auth/users/me/ and cached alongside the tokens
type User struct {
	ID          int64    `json:"id"`                   // Backend primary key
	Email       string   `json:"email"`                // Login identity
	Username    string   `json:"username,omitempty"`   // Optional display handle
	FirstName   string   `json:"first_name,omitempty"` // First name of the user
	LastName    string   `json:"last_name,omitempty"`  // Last name of the user
	IsStaff     bool     `json:"is_staff"`             // Grants the admin route group
	IsSuperuser bool     `json:"is_superuser"`         // Unrestricted backend access
	Groups      []string `json:"groups,omitempty"`     // Role-group names, e.g. "Full Access Admin"
}

// DisplayName prefers "First Last", then username, then email
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	return utils.FirstNonEmpty(u.FirstName+" "+u.LastName, u.Username, u.Email)
}

// InGroup reports membership of a role group
func (u *User) InGroup(group GroupName) bool {
	if u == nil {
		return false
	}
	for _, g := range u.Groups {
		if g == string(group) {
			return true
		}
	}
	return false
}

// HasFullAccess is true for staff that see every service request rather than only assigned ones
func (u *User) HasFullAccess() bool {
	if u == nil || !u.IsStaff {
		return false
	}
	return u.IsSuperuser || u.InGroup(GroupMainAdmin) || u.InGroup(GroupFullAccessAdmin)
}

// RoleLabel is a short description used in page headers
func (u *User) RoleLabel() string {
	switch {
	case u == nil:
		return ""
	case u.IsSuperuser:
		return "Super Admin"
	case u.InGroup(GroupMainAdmin):
		return string(GroupMainAdmin)
	case u.InGroup(GroupFullAccessAdmin):
		return string(GroupFullAccessAdmin)
	case u.InGroup(GroupPartialAccessAdmin):
		return string(GroupPartialAccessAdmin)
	case u.IsStaff:
		return "Staff"
	default:
		return "Client"
	}
}

var emailPattern = regexp.MustCompile(`^\S+@\S+$`)

// ValidateLogin applies the login form rules: an email shaped identity and a non-empty password
func ValidateLogin(email, password string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return fmt.Errorf("invalid email")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

// Registration is the body of POST /auth/users/
type Registration struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Password   string `json:"password"`
	RePassword string `json:"re_password"`
}

// Validate checks the registration form before it is sent
func (r Registration) Validate() error {
	if !emailPattern.MatchString(strings.TrimSpace(r.Email)) {
		return fmt.Errorf("invalid email")
	}
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return fmt.Errorf("first and last name are required")
	}
	if err := ValidatePasswordStrength(r.Password); err != nil {
		return err
	}
	if r.Password != r.RePassword {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// Admin is a staff account as listed by /api/admins/ and /api/admin/list-for-assignment/
type Admin struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	GroupName string `json:"group_name,omitempty"`
}

func (a Admin) DisplayName() string {
	return utils.FirstNonEmpty(a.FirstName+" "+a.LastName, a.Email)
}

// NewAdmin is the body of POST /api/admins/; the backend mails an initial password link
type NewAdmin struct {
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Group     GroupName `json:"group"`
}

func (n NewAdmin) Validate() error {
	if !emailPattern.MatchString(strings.TrimSpace(n.Email)) {
		return fmt.Errorf("invalid email")
	}
	switch n.Group {
	case GroupFullAccessAdmin, GroupPartialAccessAdmin:
	default:
		return fmt.Errorf("group must be %q or %q", GroupFullAccessAdmin, GroupPartialAccessAdmin)
	}
	return nil
}

// PasswordChange is the body shared by set_password and the initial password flow
type PasswordChange struct {
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password"`
	ReNewPassword   string `json:"re_new_password"`
}

func (p PasswordChange) Validate() error {
	if err := ValidatePasswordStrength(p.NewPassword); err != nil {
		return err
	}
	if p.NewPassword != p.ReNewPassword {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// ProfileUpdate starts an OTP confirmed change of the caller's own details
type ProfileUpdate struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"new_password,omitempty"`
	UpdateType string `json:"update_type,omitempty"` // Staff only: "details" or "password"
}

// ValidateOTP checks the six digit code mailed by the backend
func ValidateOTP(otp string) error {
	if len(otp) != 6 {
		return fmt.Errorf("please enter a valid 6-digit OTP")
	}
	for _, c := range otp {
		if !unicode.IsDigit(c) {
			return fmt.Errorf("please enter a valid 6-digit OTP")
		}
	}
	return nil
}
