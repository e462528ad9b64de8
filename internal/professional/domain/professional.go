package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRole is returned when a role string is not one of the known roles.
var ErrInvalidRole = errors.New("invalid role")

// Role is the authorization level of a professional.
type Role string

const (
	RoleDoctor Role = "MEDECIN"
	RoleNurse  Role = "INFIRMIER"
	RoleAdmin  Role = "ADMIN"
)

// Roles lists every valid role.
var Roles = []Role{RoleDoctor, RoleNurse, RoleAdmin}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RoleNurse, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts s (case-insensitive) into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Professional is a registered clinician or administrator. Email is the unique,
// case-sensitive login key and the owner key of session records.
type Professional struct {
	ID           string
	Email        string
	PasswordHash string
	LastName     string
	FirstName    string
	Specialty    string
	RPPSNumber   string // national practitioner identifier; optional for admins
	Role         Role
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// Validate validates the professional for persistence. Returns an error describing the first validation failure.
func (p *Professional) Validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("email is required")
	}
	if p.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if strings.TrimSpace(p.LastName) == "" || strings.TrimSpace(p.FirstName) == "" {
		return errors.New("last name and first name are required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	return nil
}

// FullName returns "FirstName LastName".
func (p *Professional) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
