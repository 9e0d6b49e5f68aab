// ABOUTME: Content service validating items before delegating to the record store
// ABOUTME: Lists hide scheduled items until their publish time

package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/store"
)

// Collection holds content items.
const Collection = "content"

// MediaUploader stores a media file and returns its URI.
type MediaUploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// Filter narrows List results. Empty fields do not filter.
type Filter struct {
	Category         string
	AccessLevel      string
	Tag              string
	IncludeScheduled bool
	Limit            int
}

// Service manages content items.
type Service struct {
	store    store.RecordStore
	uploader MediaUploader
	markdown goldmark.Markdown
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithUploader sets the media uploader used by Upload.
func WithUploader(u MediaUploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithClock overrides the clock used for schedule checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a content service over s.
func NewService(s store.RecordStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:    s,
		markdown: goldmark.New(),
		logger:   logger.With("component", "content"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create validates and stores a new item, returning its id.
func (s *Service) Create(ctx context.Context, it Item) (string, error) {
	if err := Validate(it); err != nil {
		return "", err
	}
	id, err := s.store.Create(ctx, Collection, toFields(it, nil))
	if err != nil {
		return "", err
	}
	s.logger.Info("content created", "id", id, "category", it.Category, "premium", it.IsPremium)
	return id, nil
}

// Get returns the item or NotFound.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	rec, err := s.store.GetOne(ctx, Collection, id)
	if err != nil {
		return Item{}, err
	}
	if rec == nil {
		return Item{}, apperr.NotFound("content")
	}
	return fromRecord(*rec), nil
}

// List returns items newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Item, error) {
	q := store.NewQuery()
	if f.Category != "" {
		q = q.Where(fieldCategory, store.OpEq, f.Category)
	}
	if f.AccessLevel != "" {
		q = q.Where(fieldAccessLevel, store.OpEq, f.AccessLevel)
	}
	if f.Tag != "" {
		q = q.Where(fieldTags, store.OpArrayContains, f.Tag)
	}
	q = q.OrderBy(store.KeyCreatedAt, store.Desc)

	recs, err := s.store.GetAll(ctx, Collection, q)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]Item, 0, len(recs))
	for _, rec := range recs {
		it := fromRecord(rec)
		if !f.IncludeScheduled && !it.Visible(now) {
			continue
		}
		out = append(out, it)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Update applies p to an existing item. The patch is validated before any
// store call; the merged item is validated again inside the transaction.
func (s *Service) Update(ctx context.Context, id string, p Patch) error {
	if err := validatePatch(p); err != nil {
		return err
	}

	err := s.store.Transact(ctx, func(tx store.Tx) error {
		rec, err := tx.Get(Collection, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NotFound("content")
		}
		merged := p.Apply(fromRecord(*rec))
		if err := Validate(merged); err != nil {
			return err
		}
		return tx.Put(Collection, id, toFields(merged, rec.Fields))
	})
	if err != nil {
		return err
	}
	s.logger.Info("content updated", "id", id)
	return nil
}

// Delete removes an item. Deleting a missing item is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, Collection, id); err != nil {
		return err
	}
	s.logger.Info("content deleted", "id", id)
	return nil
}

// Upload stores a media file through the configured uploader.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if s.uploader == nil {
		return "", apperr.New(apperr.KindNetwork, "no media uploader configured")
	}
	uri, err := s.uploader.Upload(ctx, name, r)
	if err != nil {
		return "", apperr.Ensure(err, apperr.KindNetwork)
	}
	return uri, nil
}

// BodyHTML renders the item's Markdown body. Raw HTML in the body is
// omitted.
func (s *Service) BodyHTML(it Item) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(it.Body), &buf); err != nil {
		return "", fmt.Errorf("rendering body: %w", err)
	}
	return buf.String(), nil
}
