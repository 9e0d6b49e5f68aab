// ABOUTME: Mapping between users records and access.Principal values
// ABOUTME: Unknown stored roles degrade to the user role

package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/store"
)

// UsersCollection holds one principal record per provider uid.
const UsersCollection = "users"

// Principal record fields.
const (
	FieldEmail        = "email"
	FieldRole         = "role"
	FieldDisplayName  = "displayName"
	FieldLastLoginAt  = "lastLoginAt"
	FieldLastLogoutAt = "lastLogoutAt"
)

// PrincipalFromRecord builds a Principal from a users record.
func PrincipalFromRecord(rec *store.Record, logger *slog.Logger) *access.Principal {
	if rec == nil {
		return nil
	}
	role, err := access.ParseRole(rec.String(FieldRole))
	if err != nil {
		if logger != nil {
			logger.Warn("unknown stored role, treating as user", "uid", rec.ID, "role", rec.String(FieldRole))
		}
		role = access.RoleUser
	}
	p := &access.Principal{
		ID:          rec.ID,
		Email:       rec.String(FieldEmail),
		Role:        role,
		DisplayName: rec.String(FieldDisplayName),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if t, ok := rec.Time(FieldLastLoginAt); ok {
		p.LastLoginAt = t
	}
	if t, ok := rec.Time(FieldLastLogoutAt); ok {
		p.LastLogoutAt = t
	}
	return p
}

// LoadPrincipal reads users/<uid>. A missing record returns nil, nil.
func LoadPrincipal(ctx context.Context, r store.Reader, uid string, logger *slog.Logger) (*access.Principal, error) {
	rec, err := r.GetOne(ctx, UsersCollection, uid)
	if err != nil {
		return nil, err
	}
	return PrincipalFromRecord(rec, logger), nil
}

// NewPrincipalFields returns the users record written at sign-up.
func NewPrincipalFields(email string, role access.Role, displayName string) store.Fields {
	if displayName == "" {
		displayName = DefaultDisplayName(email)
	}
	return store.Fields{
		FieldEmail:       email,
		FieldRole:        string(role),
		FieldDisplayName: displayName,
	}
}

// DefaultDisplayName is the local part of email.
func DefaultDisplayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
