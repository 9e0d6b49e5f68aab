// ABOUTME: Analytics service for page views, workout completions, and aggregates
// ABOUTME: Page-view counters change only inside a store transaction

// Package analytics records member engagement events.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/fitportal/internal/dedupe"
	"github.com/2389/fitportal/internal/store"
	"github.com/2389/fitportal/internal/validate"
)

// Collections written by the analytics service.
const (
	PageViewCollection   = "pageViews"
	CompletionCollection = "workoutCompletions"
	MetricsCollection    = "metrics"
)

// PageView is one recorded page view.
type PageView struct {
	ID        string
	UserID    string
	PageID    string
	Timestamp time.Time
}

// Performance aggregates engagement with one content item.
type Performance struct {
	Views       int
	Completions int
}

// Options configures a Service.
type Options struct {
	// DedupeWindow suppresses repeat views of the same page by the same
	// user. Zero disables suppression.
	DedupeWindow time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Service records analytics events.
type Service struct {
	store  store.RecordStore
	recent *dedupe.Cache
	logger *slog.Logger
	now    func() time.Time
}

type viewInput struct {
	UserID string `json:"userId" validate:"notblank"`
	PageID string `json:"pageId" validate:"notblank,max=256"`
}

type completionInput struct {
	UserID    string        `json:"userId" validate:"notblank"`
	WorkoutID string        `json:"workoutId" validate:"notblank"`
	Duration  time.Duration `json:"duration" validate:"gte=0"`
}

// NewService creates an analytics service over s.
func NewService(s store.RecordStore, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	svc := &Service{
		store:  s,
		logger: logger.With("component", "analytics"),
		now:    now,
	}
	if opts.DedupeWindow > 0 {
		svc.recent = dedupe.New(opts.DedupeWindow, 0, dedupe.WithClock(now))
	}
	return svc
}

// Close releases the de-duplication window.
func (s *Service) Close() {
	if s.recent != nil {
		s.recent.Close()
	}
}

// TrackPageView records a view and increments metrics/<pageID>.views in
// the same transaction. It reports false when the view was suppressed by
// the de-duplication window.
func (s *Service) TrackPageView(ctx context.Context, userID, pageID string) (bool, error) {
	if err := validate.Struct(viewInput{UserID: userID, PageID: pageID}); err != nil {
		return false, err
	}

	key := dedupe.Key(userID, pageID)
	if s.recent != nil && s.recent.CheckAndMark(key) {
		s.logger.Debug("page view suppressed", "user_id", userID, "page_id", pageID)
		return false, nil
	}

	ts := s.now().UTC()
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		if _, err := tx.Create(PageViewCollection, store.Fields{
			"userId":    userID,
			"pageId":    pageID,
			"timestamp": ts,
		}); err != nil {
			return err
		}

		counter, err := tx.Get(MetricsCollection, pageID)
		if err != nil {
			return err
		}
		if counter == nil {
			return tx.Put(MetricsCollection, pageID, store.Fields{"views": 1})
		}
		views, _ := counter.Float("views")
		return tx.Update(MetricsCollection, pageID, store.Fields{"views": views + 1})
	})
	if err != nil {
		if s.recent != nil {
			s.recent.Forget(key)
		}
		return false, err
	}
	return true, nil
}

// TrackWorkoutCompletion records a finished workout.
func (s *Service) TrackWorkoutCompletion(ctx context.Context, userID, workoutID string, duration time.Duration) error {
	if err := validate.Struct(completionInput{UserID: userID, WorkoutID: workoutID, Duration: duration}); err != nil {
		return err
	}
	_, err := s.store.Create(ctx, CompletionCollection, store.Fields{
		"userId":          userID,
		"workoutId":       workoutID,
		"durationSeconds": duration.Seconds(),
		"timestamp":       s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.logger.Debug("workout completed", "user_id", userID, "workout_id", workoutID, "duration", duration)
	return nil
}

// UserEngagement returns userID's page views, newest first. from and to
// are inclusive and either may be nil.
func (s *Service) UserEngagement(ctx context.Context, userID string, from, to *time.Time) ([]PageView, error) {
	if err := validate.Var("userId", userID, "notblank"); err != nil {
		return nil, err
	}
	q := store.NewQuery().Where("userId", store.OpEq, userID)
	if from != nil {
		q = q.Where("timestamp", store.OpGe, from.UTC())
	}
	if to != nil {
		q = q.Where("timestamp", store.OpLe, to.UTC())
	}
	recs, err := s.store.GetAll(ctx, PageViewCollection, q.OrderBy("timestamp", store.Desc))
	if err != nil {
		return nil, err
	}

	out := make([]PageView, 0, len(recs))
	for _, rec := range recs {
		pv := PageView{ID: rec.ID, UserID: rec.String("userId"), PageID: rec.String("pageId")}
		if ts, ok := rec.Time("timestamp"); ok {
			pv.Timestamp = ts
		}
		out = append(out, pv)
	}
	return out, nil
}

// ContentPerformance counts recorded views and completions of contentID.
func (s *Service) ContentPerformance(ctx context.Context, contentID string) (Performance, error) {
	if err := validate.Var("contentId", contentID, "notblank"); err != nil {
		return Performance{}, err
	}
	views, err := s.store.GetAll(ctx, PageViewCollection, store.NewQuery().Where("pageId", store.OpEq, contentID))
	if err != nil {
		return Performance{}, err
	}
	completions, err := s.store.GetAll(ctx, CompletionCollection, store.NewQuery().Where("workoutId", store.OpEq, contentID))
	if err != nil {
		return Performance{}, err
	}
	return Performance{Views: len(views), Completions: len(completions)}, nil
}

// PageViews returns the aggregate view counter for pageID.
func (s *Service) PageViews(ctx context.Context, pageID string) (int, error) {
	rec, err := s.store.GetOne(ctx, MetricsCollection, pageID)
	if err != nil || rec == nil {
		return 0, err
	}
	views, _ := rec.Float("views")
	return int(views), nil
}
