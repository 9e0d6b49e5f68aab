// ABOUTME: ContentItem type, patch type, record mapping, and field validation
// ABOUTME: Validation runs in form order and never touches the store

package content

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/store"
	"github.com/2389/fitportal/internal/validate"
)

// Access levels derived from IsPremium.
const (
	AccessPremium = "premium"
	AccessFree    = "free"
)

// Record field names.
const (
	fieldTitle       = "title"
	fieldBody        = "body"
	fieldCategory    = "category"
	fieldSubcategory = "subcategory"
	fieldTags        = "tags"
	fieldIsPremium   = "isPremium"
	fieldPrice       = "price"
	fieldAccessLevel = "accessLevel"
	fieldMediaRefs   = "mediaRefs"
	fieldScheduledAt = "scheduledAt"
)

// MaxTitleLength bounds item titles.
const MaxTitleLength = 200

// Item is a content item.
type Item struct {
	ID          string
	Title       string
	Body        string // Markdown
	Category    string
	Subcategory string
	Tags        []string
	IsPremium   bool
	Price       *float64
	MediaRefs   []string
	ScheduledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccessLevel is "premium" for premium items and "free" otherwise.
func (it Item) AccessLevel() string {
	if it.IsPremium {
		return AccessPremium
	}
	return AccessFree
}

// Visible reports whether the item is published at now.
func (it Item) Visible(now time.Time) bool {
	return it.ScheduledAt == nil || !it.ScheduledAt.After(now)
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Body        *string
	Category    *string
	Subcategory *string
	Tags        *[]string
	IsPremium   *bool
	Price       *float64
	ClearPrice  bool
	MediaRefs   *[]string
	ScheduledAt *time.Time
	// ClearSchedule publishes a scheduled item immediately.
	ClearSchedule bool
}

// Apply returns it with the patch applied.
func (p Patch) Apply(it Item) Item {
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Body != nil {
		it.Body = *p.Body
	}
	if p.Category != nil {
		it.Category = *p.Category
	}
	if p.Subcategory != nil {
		it.Subcategory = *p.Subcategory
	}
	if p.Tags != nil {
		it.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.IsPremium != nil {
		it.IsPremium = *p.IsPremium
	}
	if p.ClearPrice {
		it.Price = nil
	}
	if p.Price != nil {
		price := *p.Price
		it.Price = &price
	}
	if p.MediaRefs != nil {
		it.MediaRefs = append([]string(nil), (*p.MediaRefs)...)
	}
	if p.ClearSchedule {
		it.ScheduledAt = nil
	}
	if p.ScheduledAt != nil {
		at := *p.ScheduledAt
		it.ScheduledAt = &at
	}
	return it
}

// validatePatch checks the fields a patch sets, without cross-field rules.
func validatePatch(p Patch) error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Body != nil {
		if err := validate.Var(fieldBody, *p.Body, "notblank"); err != nil {
			return err
		}
	}
	if p.Category != nil {
		if _, err := validateCategory(*p.Category); err != nil {
			return err
		}
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
	}
	if p.MediaRefs != nil {
		if err := validateMediaRefs(*p.MediaRefs); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks it in form order: title, body, category, subcategory,
// price, mediaRefs.
func Validate(it Item) error {
	if err := validateTitle(it.Title); err != nil {
		return err
	}
	if err := validate.Var(fieldBody, it.Body, "notblank"); err != nil {
		return err
	}
	cat, err := validateCategory(it.Category)
	if err != nil {
		return err
	}
	if it.Subcategory != "" && !cat.HasSubcategory(it.Subcategory) {
		return apperr.Validation(fieldSubcategory, fmt.Sprintf("is not part of %s", cat.Name))
	}
	switch {
	case it.IsPremium && it.Price == nil:
		return apperr.Validation(fieldPrice, "is required for premium content")
	case !it.IsPremium && it.Price != nil:
		return apperr.Validation(fieldPrice, "must be empty for free content")
	case it.IsPremium:
		if err := validatePrice(*it.Price); err != nil {
			return err
		}
	}
	return validateMediaRefs(it.MediaRefs)
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return apperr.Validation(fieldPrice, "must be a finite number")
	}
	if price < 0 {
		return apperr.Validation(fieldPrice, "must be at least 0")
	}
	return nil
}

func validateTitle(title string) error {
	return validate.Var(fieldTitle, title, fmt.Sprintf("notblank,max=%d", MaxTitleLength))
}

func validateCategory(name string) (Category, error) {
	if err := validate.Var(fieldCategory, name, "notblank"); err != nil {
		return Category{}, err
	}
	cat, ok := LookupCategory(name)
	if !ok {
		return Category{}, apperr.Validation(fieldCategory, fmt.Sprintf("unknown category %q", name))
	}
	return cat, nil
}

func validateMediaRefs(refs []string) error {
	for i, ref := range refs {
		if err := validate.Var(fmt.Sprintf("%s[%d]", fieldMediaRefs, i), ref, "uri"); err != nil {
			return err
		}
	}
	return nil
}

// normalizeTags trims, drops empties, and removes duplicates keeping the
// first occurrence.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// toFields renders it as record fields, layered over base.
func toFields(it Item, base store.Fields) store.Fields {
	f := store.Fields{}
	for k, v := range base {
		f[k] = v
	}
	f[fieldTitle] = strings.TrimSpace(it.Title)
	f[fieldBody] = it.Body
	f[fieldCategory] = it.Category
	f[fieldSubcategory] = it.Subcategory
	f[fieldTags] = normalizeTags(it.Tags)
	f[fieldIsPremium] = it.IsPremium
	f[fieldAccessLevel] = it.AccessLevel()
	if it.MediaRefs == nil {
		f[fieldMediaRefs] = []string{}
	} else {
		f[fieldMediaRefs] = it.MediaRefs
	}

	delete(f, fieldPrice)
	if it.Price != nil {
		f[fieldPrice] = *it.Price
	}
	delete(f, fieldScheduledAt)
	if it.ScheduledAt != nil {
		f[fieldScheduledAt] = it.ScheduledAt.UTC()
	}
	return f
}

// fromRecord decodes a content record.
func fromRecord(rec store.Record) Item {
	it := Item{
		ID:          rec.ID,
		Title:       rec.String(fieldTitle),
		Body:        rec.String(fieldBody),
		Category:    rec.String(fieldCategory),
		Subcategory: rec.String(fieldSubcategory),
		Tags:        rec.Strings(fieldTags),
		IsPremium:   rec.Bool(fieldIsPremium),
		MediaRefs:   rec.Strings(fieldMediaRefs),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if price, ok := rec.Float(fieldPrice); ok {
		it.Price = &price
	}
	if at, ok := rec.Time(fieldScheduledAt); ok {
		it.ScheduledAt = &at
	}
	return it
}
