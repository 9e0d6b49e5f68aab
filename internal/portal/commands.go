// ABOUTME: Shell command handlers for auth, content, progress, analytics, and admin
// ABOUTME: Role checks run in the shell before any service call that needs them

package portal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/content"
	"github.com/2389/fitportal/internal/progress"
)

var errSignInRequired = errors.New("sign in first: login <email> <password>")

// require checks the signed-in principal against req.
func (s *Shell) require(req access.Requirement) (*access.Principal, error) {
	p := s.app.Session.Current()
	d := access.Admit(p, req)
	switch {
	case d.Allowed:
		return p, nil
	case d.Reason == access.ReasonUnauthenticated:
		return nil, errSignInRequired
	}
	return nil, apperr.New(apperr.KindPermissionDenied, "requires "+req.String())
}

func (s *Shell) cmdSignUp(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: signup <email> <password>")
	}
	p, err := s.app.Session.SignUp(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	s.colorf(green, "  ✓ Welcome, %s\n", p.DisplayName)
	s.afterSignIn(ctx, p)
	return nil
}

func (s *Shell) cmdLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: login <email> <password>")
	}
	p, err := s.app.Session.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	s.colorf(green, "  ✓ Signed in as %s (%s)\n", p.Email, p.Role)
	s.afterSignIn(ctx, p)
	return nil
}

// afterSignIn leaves the sign-in pages for the member's landing page.
func (s *Shell) afterSignIn(ctx context.Context, p *access.Principal) {
	id := p.ID
	s.syncSession(ctx, func(cur *access.Principal) bool { return cur != nil && cur.ID == id })

	if s.current == nil {
		return
	}
	switch s.current.match.Route.Name {
	case "login", "signup", "admin-login":
		target := "/dashboard"
		if p.IsAdmin() {
			target = "/admin"
		}
		if err := s.navigate(ctx, target); err != nil {
			s.printErr(err)
		}
	}
}

func (s *Shell) cmdLogout(ctx context.Context) error {
	if err := s.app.Session.Logout(ctx); err != nil {
		return err
	}
	s.colorf(green, "  ✓ Signed out\n")
	s.syncSession(ctx, func(cur *access.Principal) bool { return cur == nil })
	return nil
}

func (s *Shell) cmdWhoAmI() error {
	p := s.app.Session.Current()
	if p == nil {
		s.printf("  not signed in\n")
		return nil
	}
	s.printf("  %s <%s>\n  id:   %s\n  role: %s\n", p.DisplayName, p.Email, p.ID, p.Role)
	if !p.LastLoginAt.IsZero() {
		s.printf("  last login: %s\n", p.LastLoginAt.Local().Format("Jan 02, 2006 15:04"))
	}
	return nil
}

// --- content ---

var contentValueFlags = []string{"title", "body", "category", "subcategory", "tags", "price", "media", "schedule"}

func (s *Shell) cmdContent(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: content list|show|create|update|delete")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list", "ls":
		return s.contentList(ctx, rest)
	case "show":
		return s.contentShow(ctx, rest)
	case "create":
		return s.contentCreate(ctx, rest)
	case "update":
		return s.contentUpdate(ctx, rest)
	case "delete", "rm":
		return s.contentDelete(ctx, rest)
	}
	return fmt.Errorf("unknown content command: %s", sub)
}

func (s *Shell) contentList(ctx context.Context, args []string) error {
	fs, err := parseFlags(args, []string{"category", "access", "tag", "limit"}, []string{"all"})
	if err != nil {
		return err
	}
	f := content.Filter{AccessLevel: fs.str("access"), Tag: fs.str("tag")}
	if c := fs.str("category"); c != "" {
		f.Category, _ = canonicalCategory(c, "")
	}
	if fs.has("all") {
		if _, err := s.require(access.RequireAdmin); err != nil {
			return err
		}
		f.IncludeScheduled = true
	}
	if fs.has("limit") {
		n, err := strconv.Atoi(fs.str("limit"))
		if err != nil || n < 1 {
			return fmt.Errorf("--limit must be a positive number")
		}
		f.Limit = n
	}
	items, err := s.app.Content.List(ctx, f)
	if err != nil {
		return err
	}
	s.printItems(items)
	return nil
}

func (s *Shell) contentShow(ctx context.Context, args []string) error {
	fs, err := parseFlags(args, nil, []string{"html"})
	if err != nil {
		return err
	}
	if len(fs.positional) != 1 {
		return fmt.Errorf("usage: content show <id> [--html]")
	}
	id := fs.positional[0]
	it, err := s.app.Content.Get(ctx, id)
	if err != nil {
		return err
	}
	s.printItem(it, fs.has("html"))
	if p := s.app.Session.Current(); p != nil && s.current != nil {
		s.trackView(ctx, s.current, p, it.ID)
	}
	return nil
}

// canonicalCategory maps slugs and display names to catalogue names.
// Unknown values are returned unchanged for validation to reject.
func canonicalCategory(category, subcategory string) (string, string) {
	if name, sub, ok := categoryForSlug(slug(category)); ok && sub == "" {
		category = name
		if c, ok := content.LookupCategory(name); ok {
			for _, candidate := range c.Subcategories {
				if slug(candidate) == slug(subcategory) {
					subcategory = candidate
				}
			}
		}
	}
	return category, subcategory
}

func (s *Shell) contentCreate(ctx context.Context, args []string) error {
	if _, err := s.require(access.RequireAdmin); err != nil {
		return err
	}
	fs, err := parseFlags(args, contentValueFlags, []string{"premium"})
	if err != nil {
		return err
	}
	price, err := fs.float("price")
	if err != nil {
		return err
	}
	schedule, err := fs.date("schedule")
	if err != nil {
		return err
	}
	category, sub := canonicalCategory(fs.str("category"), fs.str("subcategory"))

	id, err := s.app.Content.Create(ctx, content.Item{
		Title:       fs.str("title"),
		Body:        fs.str("body"),
		Category:    category,
		Subcategory: sub,
		Tags:        fs.list("tags"),
		IsPremium:   fs.has("premium"),
		Price:       price,
		MediaRefs:   fs.list("media"),
		ScheduledAt: schedule,
	})
	if err != nil {
		return err
	}
	s.colorf(green, "  ✓ Created content %s\n", id)
	return nil
}

func (s *Shell) contentUpdate(ctx context.Context, args []string) error {
	if _, err := s.require(access.RequireAdmin); err != nil {
		return err
	}
	fs, err := parseFlags(args, contentValueFlags, []string{"premium", "free", "unschedule"})
	if err != nil {
		return err
	}
	if len(fs.positional) != 1 {
		return fmt.Errorf("usage: content update <id> [flags]")
	}
	price, err := fs.float("price")
	if err != nil {
		return err
	}
	schedule, err := fs.date("schedule")
	if err != nil {
		return err
	}

	p := content.Patch{
		Title:         fs.strPtr("title"),
		Body:          fs.strPtr("body"),
		Price:         price,
		ScheduledAt:   schedule,
		ClearSchedule: fs.has("unschedule"),
	}
	if fs.has("category") || fs.has("subcategory") {
		category, sub := canonicalCategory(fs.str("category"), fs.str("subcategory"))
		if fs.has("category") {
			p.Category = &category
		}
		if fs.has("subcategory") {
			p.Subcategory = &sub
		}
	}
	if fs.has("tags") {
		tags := fs.list("tags")
		p.Tags = &tags
	}
	if fs.has("media") {
		refs := fs.list("media")
		p.MediaRefs = &refs
	}
	switch {
	case fs.has("premium") && fs.has("free"):
		return fmt.Errorf("--premium and --free are exclusive")
	case fs.has("premium"):
		premium := true
		p.IsPremium = &premium
	case fs.has("free"):
		premium := false
		p.IsPremium = &premium
		p.ClearPrice = true
	}

	if err := s.app.Content.Update(ctx, fs.positional[0], p); err != nil {
		return err
	}
	s.colorf(green, "  ✓ Updated content %s\n", fs.positional[0])
	return nil
}

func (s *Shell) contentDelete(ctx context.Context, args []string) error {
	if _, err := s.require(access.RequireAdmin); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: content delete <id>")
	}
	if err := s.app.Content.Delete(ctx, args[0]); err != nil {
		return err
	}
	s.colorf(green, "  ✓ Deleted content %s\n", args[0])
	return nil
}

// --- progress ---

func (s *Shell) cmdProgress(ctx context.Context, args []string) error {
	p, err := s.require(access.RequireAuthenticated)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: progress add|list|latest|delete")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		return s.progressAdd(ctx, p, rest)
	case "list", "ls":
		return s.progressList(ctx, p, rest)
	case "latest":
		e, err := s.app.Progress.LatestEntry(ctx, p.ID)
		if err != nil {
			return err
		}
		if e == nil {
			s.printf("  (no entries)\n")
			return nil
		}
		s.printEntry(*e)
		return nil
	case "delete", "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: progress delete <id>")
		}
		if err := s.app.Progress.DeleteEntry(ctx, p.ID, rest[0]); err != nil {
			return err
		}
		s.colorf(green, "  ✓ Deleted entry %s\n", rest[0])
		return nil
	}
	return fmt.Errorf("unknown progress command: %s", sub)
}

func (s *Shell) progressAdd(ctx context.Context, p *access.Principal, args []string) error {
	valued := append([]string{"date", "weight", "bodyfat", "notes"}, progress.Limbs...)
	fs, err := parseFlags(args, valued, nil)
	if err != nil {
		return err
	}

	date := time.Now().UTC()
	if d, err := fs.date("date"); err != nil {
		return err
	} else if d != nil {
		date = *d
	}
	weight, err := fs.float("weight")
	if err != nil {
		return err
	}
	bodyFat, err := fs.float("bodyfat")
	if err != nil {
		return err
	}
	var measurements map[string]float64
	for _, limb := range progress.Limbs {
		v, err := fs.float(limb)
		if err != nil {
			return err
		}
		if v != nil {
			if measurements == nil {
				measurements = map[string]float64{}
			}
			measurements[limb] = *v
		}
	}

	id, err := s.app.Progress.AddEntry(ctx, progress.Entry{
		UserID:       p.ID,
		Date:         date,
		Weight:       weight,
		BodyFatPct:   bodyFat,
		Measurements: measurements,
		Notes:        fs.str("notes"),
	})
	if err != nil {
		return err
	}
	s.colorf(green, "  ✓ Recorded entry %s\n", id)
	return nil
}

func (s *Shell) progressList(ctx context.Context, p *access.Principal, args []string) error {
	fs, err := parseFlags(args, []string{"from", "to"}, nil)
	if err != nil {
		return err
	}
	from, err := fs.date("from")
	if err != nil {
		return err
	}
	to, err := fs.date("to")
	if err != nil {
		return err
	}
	entries, err := s.app.Progress.UserProgress(ctx, p.ID, from, to)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		s.printf("  (no entries)\n")
		return nil
	}
	for _, e := range entries {
		s.printEntry(e)
	}
	return nil
}

// --- analytics ---

func (s *Shell) cmdTrack(ctx context.Context, args []string) error {
	p, err := s.require(access.RequireAuthenticated)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: track <workout-id> <duration>")
	}
	d, err := time.ParseDuration(args[1])
	if err != nil {
		return fmt.Errorf("duration %q: use a form like 45m or 1h10m", args[1])
	}
	if err := s.app.Analytics.TrackWorkoutCompletion(ctx, p.ID, args[0], d); err != nil {
		return err
	}
	s.colorf(green, "  ✓ Workout %s completed in %s\n", args[0], d)
	return nil
}

func (s *Shell) cmdStats(ctx context.Context, args []string) error {
	if _, err := s.require(access.RequireAuthenticated); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: stats <content-id>")
	}
	perf, err := s.app.Analytics.ContentPerformance(ctx, args[0])
	if err != nil {
		return err
	}
	views, err := s.app.Analytics.PageViews(ctx, args[0])
	if err != nil {
		return err
	}
	s.printf("  views: %d (counter %d)\n  completions: %d\n", perf.Views, views, perf.Completions)
	return nil
}

// --- admin ---

func (s *Shell) cmdUsers(ctx context.Context, args []string) error {
	actor, err := s.require(access.RequireAdmin)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: users list|role|disable|enable|audit")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list", "ls":
		fs, err := parseFlags(rest, []string{"role"}, nil)
		if err != nil {
			return err
		}
		list, err := s.app.Admin.ListPrincipals(ctx, actor, access.Role(strings.ToLower(fs.str("role"))))
		if err != nil {
			return err
		}
		s.printPrincipals(list)
		return nil
	case "role":
		if len(rest) != 2 {
			return fmt.Errorf("usage: users role <id> <user|trainer|admin>")
		}
		role, err := access.ParseRole(rest[1])
		if err != nil {
			return apperr.Validation("role", "must be one of user, trainer, admin")
		}
		if err := s.app.Admin.SetRole(ctx, actor, rest[0], role); err != nil {
			return err
		}
		s.colorf(green, "  ✓ %s is now %s\n", rest[0], role)
		return nil
	case "disable", "enable":
		if len(rest) != 1 {
			return fmt.Errorf("usage: users %s <id>", sub)
		}
		if err := s.app.Admin.SetDisabled(ctx, actor, rest[0], sub == "disable"); err != nil {
			return err
		}
		s.colorf(green, "  ✓ %sd %s\n", sub, rest[0])
		return nil
	case "audit":
		fs, err := parseFlags(rest, []string{"limit"}, nil)
		if err != nil {
			return err
		}
		limit := 0
		if fs.has("limit") {
			if limit, err = strconv.Atoi(fs.str("limit")); err != nil {
				return fmt.Errorf("--limit must be a number")
			}
		}
		entries, err := s.app.Admin.AuditLog(ctx, actor, limit)
		if err != nil {
			return err
		}
		s.outMu.Lock()
		defer s.outMu.Unlock()
		w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  WHEN\tACTOR\tACTION\tTARGET\tDETAIL")
		for _, e := range entries {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Format("Jan 02 15:04:05"), e.ActorID, e.Action, e.TargetID, e.Detail)
		}
		w.Flush()
		return nil
	}
	return fmt.Errorf("unknown users command: %s", sub)
}

// --- checkout ---

func (s *Shell) cmdCheckout(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: checkout <package>")
	}
	u, err := s.app.CheckoutURL(args[0])
	if err != nil {
		return err
	}
	s.printf("  Continue to checkout: %s\n", u)
	return nil
}
