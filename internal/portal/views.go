// ABOUTME: Per-route rendering for the terminal portal
// ABOUTME: Data loads run through the view's mount scope and are dropped after navigation

package portal

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/content"
	"github.com/2389/fitportal/internal/mount"
	"github.com/2389/fitportal/internal/progress"
)

var faqs = map[string]string{
	"faq-personal-training": "Personal Training: one-to-one sessions built around your goals, with progress check-ins every four weeks.",
	"faq-group-training":    "Group Training: small classes of up to ten, mixing strength and conditioning.",
	"faq-nutrition":         "Nutrition Coaching: weekly meal plans and habit coaching alongside your training.",
}

// render draws an admitted view and records the page view.
func (s *Shell) render(ctx context.Context, v *view) {
	p := s.app.Session.Current()
	s.trackView(ctx, v, p, v.match.Path)

	switch v.match.Route.Name {
	case "home":
		s.renderHome(p)
	case "login", "admin-login":
		s.printf("  Sign in with: login <email> <password>\n")
	case "signup":
		s.printf("  Create an account with: signup <email> <password>\n")
	case "blog-post":
		s.loadItem(ctx, v, v.match.Params["slug"], false)
	case "category":
		s.loadCategory(ctx, v, v.match.Params["category"])
	case "checkout":
		if err := s.cmdCheckout([]string{v.match.Params["package"]}); err != nil {
			s.printErr(err)
		}
	case "dashboard":
		s.loadDashboard(ctx, v, p)
	case "admin":
		s.renderAdmin(ctx, v, p)
	default:
		if text, ok := faqs[v.match.Route.Name]; ok {
			s.printf("  %s\n", text)
			return
		}
		s.printf("  %s\n", v.match.Route.Name)
	}
}

// trackView records a page view for signed-in visitors. Failures are
// only logged.
func (s *Shell) trackView(ctx context.Context, v *view, p *access.Principal, pageID string) {
	if p == nil {
		return
	}
	userID := p.ID
	mount.Run(v.scope, ctx, func(ctx context.Context) (bool, error) {
		return s.app.Analytics.TrackPageView(ctx, userID, pageID)
	}, func(_ bool, err error) {
		if err != nil {
			s.app.Logger.Debug("page view not recorded", "page", pageID, "error", err)
		}
	})
}

func (s *Shell) renderHome(p *access.Principal) {
	if p != nil {
		s.colorf(green, "  Welcome back, %s\n", p.DisplayName)
	} else {
		s.printf("  Welcome! signup or login to see your dashboard.\n")
	}
	s.printf("  Categories:\n")
	for _, c := range content.Categories() {
		s.printf("    /category/%-10s %s\n", slug(c.Name), strings.Join(c.Subcategories, ", "))
	}
	s.printf("  Services: /faq/personal-training /faq/group-training /faq/nutrition\n")
}

// slug lower-cases name and joins words with hyphens.
func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// categoryForSlug resolves a category or subcategory slug.
func categoryForSlug(s string) (category, subcategory string, ok bool) {
	for _, c := range content.Categories() {
		if slug(c.Name) == s {
			return c.Name, "", true
		}
		for _, sub := range c.Subcategories {
			if slug(sub) == s {
				return c.Name, sub, true
			}
		}
	}
	return "", "", false
}

func (s *Shell) loadCategory(ctx context.Context, v *view, param string) {
	category, sub, ok := categoryForSlug(param)
	if !ok {
		s.colorf(red, "  ✗ Unknown category %q\n", param)
		return
	}
	s.colorf(gray, "  loading %s…\n", category)
	mount.Run(v.scope, ctx, func(ctx context.Context) ([]content.Item, error) {
		items, err := s.app.Content.List(ctx, content.Filter{Category: category})
		if err != nil || sub == "" {
			return items, err
		}
		filtered := items[:0]
		for _, it := range items {
			if it.Subcategory == sub {
				filtered = append(filtered, it)
			}
		}
		return filtered, nil
	}, func(items []content.Item, err error) {
		if err != nil {
			s.printErr(err)
			return
		}
		s.printItems(items)
	})
}

func (s *Shell) printItems(items []content.Item) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if len(items) == 0 {
		fmt.Fprintln(s.out, "  (no content)")
		return
	}
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tCATEGORY\tACCESS\tCREATED")
	fmt.Fprintln(w, "  --\t-----\t--------\t------\t-------")
	for _, it := range items {
		cat := it.Category
		if it.Subcategory != "" {
			cat += "/" + it.Subcategory
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", it.ID, truncate(it.Title, 40), cat, it.AccessLevel(), it.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
}

// loadItem shows one content item. Premium bodies need a signed-in member.
func (s *Shell) loadItem(ctx context.Context, v *view, id string, asHTML bool) {
	mount.Run(v.scope, ctx, func(ctx context.Context) (content.Item, error) {
		return s.app.Content.Get(ctx, id)
	}, func(it content.Item, err error) {
		if err != nil {
			s.printErr(err)
			return
		}
		s.printItem(it, asHTML)
	})
}

func (s *Shell) printItem(it content.Item, asHTML bool) {
	s.colorf(cyan, "  %s\n", it.Title)
	meta := []string{it.Category}
	if it.Subcategory != "" {
		meta = append(meta, it.Subcategory)
	}
	meta = append(meta, it.AccessLevel())
	if it.Price != nil {
		meta = append(meta, fmt.Sprintf("$%.2f", *it.Price))
	}
	if len(it.Tags) > 0 {
		meta = append(meta, "#"+strings.Join(it.Tags, " #"))
	}
	s.colorf(gray, "  %s\n\n", strings.Join(meta, " · "))

	if it.IsPremium && s.app.Session.Current() == nil {
		s.colorf(yellow, "  Premium content. Sign in to read it.\n")
		return
	}
	body := it.Body
	if asHTML {
		html, err := s.app.Content.BodyHTML(it)
		if err != nil {
			s.printErr(err)
			return
		}
		body = html
	}
	s.outMu.Lock()
	writeIndented(s.out, body)
	s.outMu.Unlock()
	for _, ref := range it.MediaRefs {
		s.printf("  [media] %s\n", ref)
	}
}

func writeIndented(w io.Writer, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func (s *Shell) loadDashboard(ctx context.Context, v *view, p *access.Principal) {
	if p == nil {
		return
	}
	s.colorf(cyan, "  Dashboard: %s (%s)\n", p.DisplayName, p.Role)
	userID := p.ID
	mount.Run(v.scope, ctx, func(ctx context.Context) (*progress.Entry, error) {
		return s.app.Progress.LatestEntry(ctx, userID)
	}, func(e *progress.Entry, err error) {
		switch {
		case err != nil:
			s.printErr(err)
		case e == nil:
			s.printf("  No progress yet. Record one with: progress add --weight 80\n")
		default:
			s.printf("  Latest progress (%s):\n", e.Date.Format("Jan 02, 2006"))
			s.printEntry(*e)
		}
	})
}

func (s *Shell) printEntry(e progress.Entry) {
	var parts []string
	if e.Weight != nil {
		parts = append(parts, fmt.Sprintf("weight %.1f", *e.Weight))
	}
	if e.BodyFatPct != nil {
		parts = append(parts, fmt.Sprintf("body fat %.1f%%", *e.BodyFatPct))
	}
	for _, limb := range progress.Limbs {
		if m, ok := e.Measurements[limb]; ok {
			parts = append(parts, fmt.Sprintf("%s %.1f", limb, m))
		}
	}
	if e.Notes != "" {
		parts = append(parts, fmt.Sprintf("%q", e.Notes))
	}
	s.printf("    %s  %s  %s\n", e.ID, e.Date.Format(time.DateOnly), strings.Join(parts, ", "))
}

func (s *Shell) renderAdmin(ctx context.Context, v *view, p *access.Principal) {
	switch section := v.match.Params["*"]; section {
	case "users":
		mount.Run(v.scope, ctx, func(ctx context.Context) ([]*access.Principal, error) {
			return s.app.Admin.ListPrincipals(ctx, p, "")
		}, func(list []*access.Principal, err error) {
			if err != nil {
				s.printErr(err)
				return
			}
			s.printPrincipals(list)
		})
	case "content":
		s.loadContentList(ctx, v, content.Filter{IncludeScheduled: true})
	default:
		s.colorf(cyan, "  Admin\n")
		s.printf("  /admin/users    manage members\n")
		s.printf("  /admin/content  manage content (including scheduled)\n")
	}
}

func (s *Shell) loadContentList(ctx context.Context, v *view, f content.Filter) {
	mount.Run(v.scope, ctx, func(ctx context.Context) ([]content.Item, error) {
		return s.app.Content.List(ctx, f)
	}, func(items []content.Item, err error) {
		if err != nil {
			s.printErr(err)
			return
		}
		s.printItems(items)
	})
}

func (s *Shell) printPrincipals(list []*access.Principal) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if len(list) == 0 {
		fmt.Fprintln(s.out, "  (no members)")
		return
	}
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tEMAIL\tNAME\tROLE\tLAST LOGIN")
	fmt.Fprintln(w, "  --\t-----\t----\t----\t----------")
	for _, p := range list {
		last := "never"
		if !p.LastLoginAt.IsZero() {
			last = p.LastLoginAt.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", p.ID, p.Email, truncate(p.DisplayName, 24), p.Role, last)
	}
	w.Flush()
}

// truncate shortens a string to maxLen characters with ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
