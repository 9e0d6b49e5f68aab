// ABOUTME: Progress service recording per-user body measurements over time
// ABOUTME: Entries form one timeline per user ordered by date descending

// Package progress stores member progress entries.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/store"
	"github.com/2389/fitportal/internal/validate"
)

// Collection holds progress entries.
const Collection = "progress"

// Limbs accepted in Measurements.
var Limbs = []string{"chest", "waist", "hips", "arms", "thighs"}

// Entry is one progress record.
type Entry struct {
	ID           string             `json:"-"`
	UserID       string             `json:"userId" validate:"notblank"`
	Date         time.Time          `json:"date" validate:"required"`
	Weight       *float64           `json:"weight" validate:"omitempty,gt=0"`
	BodyFatPct   *float64           `json:"bodyFatPct" validate:"omitempty,gte=0,lte=100"`
	Measurements map[string]float64 `json:"measurements" validate:"omitempty,dive,keys,oneof=chest waist hips arms thighs,endkeys,gt=0"`
	Notes        string             `json:"notes" validate:"max=2000"`
	CreatedAt    time.Time          `json:"-"`
}

// Service manages progress entries.
type Service struct {
	store  store.RecordStore
	logger *slog.Logger
}

// NewService creates a progress service over s.
func NewService(s store.RecordStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, logger: logger.With("component", "progress")}
}

// AddEntry validates and stores e, returning its id.
func (s *Service) AddEntry(ctx context.Context, e Entry) (string, error) {
	if err := validate.Struct(e); err != nil {
		return "", err
	}
	id, err := s.store.Create(ctx, Collection, toFields(e))
	if err != nil {
		return "", err
	}
	s.logger.Debug("progress entry added", "id", id, "user_id", e.UserID)
	return id, nil
}

// UserProgress returns userID's entries, newest first. from and to are
// inclusive and either may be nil.
func (s *Service) UserProgress(ctx context.Context, userID string, from, to *time.Time) ([]Entry, error) {
	if err := validate.Var("userId", userID, "notblank"); err != nil {
		return nil, err
	}
	q := store.NewQuery().Where("userId", store.OpEq, userID)
	if from != nil {
		q = q.Where("date", store.OpGe, from.UTC())
	}
	if to != nil {
		q = q.Where("date", store.OpLe, to.UTC())
	}
	return s.query(ctx, q.OrderBy("date", store.Desc))
}

// LatestEntry returns userID's most recent entry, or nil when there is none.
func (s *Service) LatestEntry(ctx context.Context, userID string) (*Entry, error) {
	if err := validate.Var("userId", userID, "notblank"); err != nil {
		return nil, err
	}
	entries, err := s.query(ctx, store.NewQuery().
		Where("userId", store.OpEq, userID).
		OrderBy("date", store.Desc).
		Limit(1))
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// DeleteEntry removes one of userID's entries. Entries owned by someone
// else are refused; missing entries are not an error.
func (s *Service) DeleteEntry(ctx context.Context, userID, id string) error {
	return s.store.Transact(ctx, func(tx store.Tx) error {
		rec, err := tx.Get(Collection, id)
		if err != nil || rec == nil {
			return err
		}
		if rec.String("userId") != userID {
			return apperr.New(apperr.KindPermissionDenied, "entry belongs to another user")
		}
		return tx.Delete(Collection, id)
	})
}

func (s *Service) query(ctx context.Context, q store.Query) ([]Entry, error) {
	recs, err := s.store.GetAll(ctx, Collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

func toFields(e Entry) store.Fields {
	f := store.Fields{
		"userId": e.UserID,
		"date":   e.Date.UTC(),
	}
	if e.Weight != nil {
		f["weight"] = *e.Weight
	}
	if e.BodyFatPct != nil {
		f["bodyFatPct"] = *e.BodyFatPct
	}
	if len(e.Measurements) > 0 {
		m := make(map[string]any, len(e.Measurements))
		for k, v := range e.Measurements {
			m[k] = v
		}
		f["measurements"] = m
	}
	if e.Notes != "" {
		f["notes"] = e.Notes
	}
	return f
}

func fromRecord(rec store.Record) Entry {
	e := Entry{
		ID:        rec.ID,
		UserID:    rec.String("userId"),
		Notes:     rec.String("notes"),
		CreatedAt: rec.CreatedAt,
	}
	if d, ok := rec.Time("date"); ok {
		e.Date = d
	}
	if w, ok := rec.Float("weight"); ok {
		e.Weight = &w
	}
	if bf, ok := rec.Float("bodyFatPct"); ok {
		e.BodyFatPct = &bf
	}
	if m := rec.Map("measurements"); len(m) > 0 {
		e.Measurements = make(map[string]float64, len(m))
		for k, v := range m {
			if f, ok := v.(float64); ok {
				e.Measurements[k] = f
			}
		}
	}
	return e
}
