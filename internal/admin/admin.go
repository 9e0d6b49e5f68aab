// ABOUTME: Administrator operations over principals with an audit trail
// ABOUTME: Every call is checked against the admin requirement first

package admin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/auth"
	"github.com/2389/fitportal/internal/session"
	"github.com/2389/fitportal/internal/store"
	"github.com/2389/fitportal/internal/validate"
)

// AuditCollection holds administrative actions.
const AuditCollection = "audit_log"

// Audit actions.
const (
	ActionSetRole = "set_role"
	ActionDisable = "disable"
	ActionEnable  = "enable"
)

const (
	fieldDisabled     = "disabled"
	defaultAuditLimit = 50
)

// AuditEntry is one recorded administrative action.
type AuditEntry struct {
	ID        string
	ActorID   string
	Action    string
	TargetID  string
	Detail    string
	CreatedAt time.Time
}

// Disabler blocks sign-in at the auth provider.
type Disabler interface {
	SetDisabled(ctx context.Context, uid string, disabled bool) error
}

// Service implements administrator operations.
type Service struct {
	store    store.RecordStore
	disabler Disabler
	logger   *slog.Logger
}

// NewService creates an admin service.
func NewService(s store.RecordStore, disabler Disabler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, disabler: disabler, logger: logger.With("component", "admin")}
}

func authorize(actor *access.Principal) error {
	d := access.Admit(actor, access.RequireAdmin)
	switch {
	case d.Allowed:
		return nil
	case d.Reason == access.ReasonUnauthenticated:
		return apperr.New(apperr.KindAuthFailed, "sign in required")
	default:
		return apperr.New(apperr.KindPermissionDenied, "admin role required")
	}
}

type roleChange struct {
	TargetID string `json:"targetId" validate:"notblank"`
	Role     string `json:"role" validate:"role"`
}

// SetRole assigns role to targetID.
func (s *Service) SetRole(ctx context.Context, actor *access.Principal, targetID string, role access.Role) error {
	if err := authorize(actor); err != nil {
		return err
	}
	if err := validate.Struct(roleChange{TargetID: targetID, Role: string(role)}); err != nil {
		return err
	}
	if targetID == actor.ID {
		return apperr.Validation("targetId", "cannot change your own role")
	}

	var previous string
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		rec, err := tx.Get(session.UsersCollection, targetID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NotFound("user")
		}
		previous = rec.String(session.FieldRole)
		if err := tx.Update(session.UsersCollection, targetID, store.Fields{session.FieldRole: string(role)}); err != nil {
			return err
		}
		return appendAudit(tx, actor.ID, ActionSetRole, targetID, fmt.Sprintf("%s -> %s", previous, role))
	})
	if err != nil {
		return err
	}
	s.logger.Info("role changed", "actor", actor.ID, "target", targetID, "from", previous, "to", role)
	return nil
}

// SetDisabled blocks or unblocks sign-in for targetID.
func (s *Service) SetDisabled(ctx context.Context, actor *access.Principal, targetID string, disabled bool) error {
	if err := authorize(actor); err != nil {
		return err
	}
	if err := validate.Var("targetId", targetID, "notblank"); err != nil {
		return err
	}
	if targetID == actor.ID {
		return apperr.Validation("targetId", "cannot disable your own account")
	}

	rec, err := s.store.GetOne(ctx, session.UsersCollection, targetID)
	if err != nil {
		return err
	}
	if rec == nil {
		return apperr.NotFound("user")
	}

	if err := s.disabler.SetDisabled(ctx, targetID, disabled); err != nil {
		return auth.TranslateError(err)
	}

	action := ActionEnable
	if disabled {
		action = ActionDisable
	}
	err = s.store.Transact(ctx, func(tx store.Tx) error {
		if err := tx.Update(session.UsersCollection, targetID, store.Fields{fieldDisabled: disabled}); err != nil {
			return err
		}
		return appendAudit(tx, actor.ID, action, targetID, "")
	})
	if err != nil {
		return err
	}
	s.logger.Info("account access changed", "actor", actor.ID, "target", targetID, "disabled", disabled)
	return nil
}

// ListPrincipals returns principals sorted by email. An empty role lists
// everyone.
func (s *Service) ListPrincipals(ctx context.Context, actor *access.Principal, role access.Role) ([]*access.Principal, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	q := store.NewQuery()
	if role != "" {
		if !role.Valid() {
			return nil, apperr.Validation("role", "must be a known role")
		}
		q = q.Where(session.FieldRole, store.OpEq, string(role))
	}

	recs, err := s.store.GetAll(ctx, session.UsersCollection, q)
	if err != nil {
		return nil, err
	}
	out := make([]*access.Principal, 0, len(recs))
	for i := range recs {
		out = append(out, session.PrincipalFromRecord(&recs[i], s.logger))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// AuditLog returns up to limit recent audit entries, newest first.
func (s *Service) AuditLog(ctx context.Context, actor *access.Principal, limit int) ([]AuditEntry, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	recs, err := s.store.GetAll(ctx, AuditCollection, store.NewQuery().OrderBy(store.KeyCreatedAt, store.Desc).Limit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, len(recs))
	for i, rec := range recs {
		out[i] = AuditEntry{
			ID:        rec.ID,
			ActorID:   rec.String("actorId"),
			Action:    rec.String("action"),
			TargetID:  rec.String("targetId"),
			Detail:    rec.String("detail"),
			CreatedAt: rec.CreatedAt,
		}
	}
	return out, nil
}

func appendAudit(tx store.Tx, actorID, action, targetID, detail string) error {
	_, err := tx.Create(AuditCollection, store.Fields{
		"actorId":  actorID,
		"action":   action,
		"targetId": targetID,
		"detail":   detail,
	})
	return err
}
