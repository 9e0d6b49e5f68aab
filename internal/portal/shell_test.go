// ABOUTME: Scenario tests for the terminal portal
// ABOUTME: Guarded navigation, sign-in redirects, and role-gated commands

package portal

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/config"
)

// syncBuffer is a bytes.Buffer safe for the shell's async writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Take returns and clears the buffered output.
func (b *syncBuffer) Take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

type shellFixture struct {
	app   *testApp
	shell *Shell
	out   *syncBuffer
}

func newShellFixture(t *testing.T, withAdmin bool) *shellFixture {
	t.Helper()
	var mutate []func(*config.Config)
	if withAdmin {
		mutate = append(mutate, withAdminSeed)
	}
	app := newTestApp(t, mutate...)
	out := &syncBuffer{}
	sh := NewShell(app.App, strings.NewReader(""), out)
	t.Cleanup(sh.leave)
	return &shellFixture{app: app, shell: sh, out: out}
}

// exec runs a command, applies session changes, and waits for the view's
// pending loads.
func (f *shellFixture) exec(t *testing.T, line string) (string, error) {
	t.Helper()
	ctx := context.Background()
	err := f.shell.Exec(ctx, line)
	f.shell.settle(ctx)
	if f.shell.current != nil {
		f.shell.current.scope.Wait()
	}
	return f.out.Take(), err
}

func (f *shellFixture) route() string {
	if f.shell.current == nil {
		return ""
	}
	return f.shell.current.match.Route.Name
}

func TestShell_GuestRedirectedFromDashboard(t *testing.T) {
	f := newShellFixture(t, false)

	out, err := f.exec(t, "go /dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "redirecting to /login")
	assert.Equal(t, "login", f.route())
}

func TestShell_SignUpFromLoginLandsOnDashboard(t *testing.T) {
	f := newShellFixture(t, false)
	_, err := f.exec(t, "go /login")
	require.NoError(t, err)

	out, err := f.exec(t, "signup member@example.com password1")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome, member")
	assert.Contains(t, out, "Dashboard: member (user)")
	assert.Contains(t, out, "No progress yet")
	assert.Equal(t, "dashboard", f.route())

	out, err = f.exec(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "<member@example.com>")
}

func TestShell_LogoutOnDashboardRedirects(t *testing.T) {
	f := newShellFixture(t, false)
	_, err := f.exec(t, "signup member@example.com password1")
	require.NoError(t, err)
	_, err = f.exec(t, "go /dashboard")
	require.NoError(t, err)
	require.Equal(t, "dashboard", f.route())

	out, err := f.exec(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
	assert.Contains(t, out, "redirecting to /login")
	assert.Equal(t, "login", f.route())
}

func TestShell_MemberDeniedAdminPages(t *testing.T) {
	f := newShellFixture(t, false)
	_, err := f.exec(t, "signup member@example.com password1")
	require.NoError(t, err)

	out, err := f.exec(t, "go /admin/users")
	require.NoError(t, err)
	assert.Contains(t, out, "requires admin, redirecting to /")
	assert.Equal(t, "home", f.route())

	_, err = f.exec(t, `content create --title "Leg Day" --body "Squats" --category fitness`)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = f.exec(t, "users list")
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
}

func TestShell_GuestCommandsNeedSignIn(t *testing.T) {
	f := newShellFixture(t, false)
	for _, line := range []string{"progress latest", "track w1 30m", "content delete x"} {
		_, err := f.exec(t, line)
		assert.ErrorIs(t, err, errSignInRequired, line)
	}
}

func TestShell_StaticRedirectAndUnknownPath(t *testing.T) {
	f := newShellFixture(t, false)

	_, err := f.exec(t, "go /services")
	require.NoError(t, err)
	assert.Equal(t, "home", f.route())

	_, err = f.exec(t, "go /nowhere/at/all")
	assert.ErrorContains(t, err, "page not found")
}

func TestShell_AdminContentFlow(t *testing.T) {
	f := newShellFixture(t, true)

	_, err := f.exec(t, "go /admin-login")
	require.NoError(t, err)
	out, err := f.exec(t, "login admin@example.com adminpass1")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as admin@example.com (admin)")
	assert.Equal(t, "admin", f.route())

	out, err = f.exec(t, `content create --title "Leg Day" --body "# Squats\nThree sets." --category fitness --subcategory workouts --tags legs,strength`)
	require.NoError(t, err)
	require.Contains(t, out, "Created content ")
	id := strings.Fields(out[strings.Index(out, "Created content ")+len("Created content "):])[0]

	out, err = f.exec(t, "content list --category Fitness")
	require.NoError(t, err)
	assert.Contains(t, out, "Leg Day")
	assert.Contains(t, out, "Fitness/Workouts")

	out, err = f.exec(t, "go /category/workouts")
	require.NoError(t, err)
	assert.Contains(t, out, "Leg Day")

	_, err = f.exec(t, "content update "+id+" --premium --price 12.5")
	require.NoError(t, err)
	out, err = f.exec(t, "content show "+id)
	require.NoError(t, err)
	assert.Contains(t, out, "premium")
	assert.Contains(t, out, "$12.50")

	_, err = f.exec(t, `content create --title "" --body x --category fitness`)
	assert.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindValidation, Field: "title"})

	out, err = f.exec(t, "content delete "+id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted content")
}

func TestShell_AdminManagesUsers(t *testing.T) {
	f := newShellFixture(t, true)
	ctx := context.Background()
	member, err := f.app.Session.SignUp(ctx, "member@example.com", "password1")
	require.NoError(t, err)

	_, err = f.exec(t, "login admin@example.com adminpass1")
	require.NoError(t, err)

	out, err := f.exec(t, "users list")
	require.NoError(t, err)
	assert.Contains(t, out, "member@example.com")
	assert.Contains(t, out, "admin@example.com")

	out, err = f.exec(t, "users role "+member.ID+" trainer")
	require.NoError(t, err)
	assert.Contains(t, out, "is now trainer")

	_, err = f.exec(t, "users role "+member.ID+" owner")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	out, err = f.exec(t, "users audit")
	require.NoError(t, err)
	assert.Contains(t, out, "set_role")
}

func TestShell_ProgressAndTracking(t *testing.T) {
	f := newShellFixture(t, false)
	_, err := f.exec(t, "signup member@example.com password1")
	require.NoError(t, err)

	out, err := f.exec(t, `progress add --date 2024-05-01 --weight 82.5 --waist 90 --notes "felt strong"`)
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded entry")

	_, err = f.exec(t, "progress add --weight -3")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	out, err = f.exec(t, "progress latest")
	require.NoError(t, err)
	assert.Contains(t, out, "weight 82.5")
	assert.Contains(t, out, "waist 90.0")

	out, err = f.exec(t, "track leg-day 45m")
	require.NoError(t, err)
	assert.Contains(t, out, "completed in 45m0s")

	out, err = f.exec(t, "stats leg-day")
	require.NoError(t, err)
	assert.Contains(t, out, "completions: 1")

	_, err = f.exec(t, "track leg-day soon")
	assert.ErrorContains(t, err, "duration")
}

func TestShell_Checkout(t *testing.T) {
	f := newShellFixture(t, false)

	out, err := f.exec(t, "checkout group-training")
	require.NoError(t, err)
	assert.Contains(t, out, "https://pay.example.com/checkout/group-training")

	out, err = f.exec(t, "go /checkout/nutrition")
	require.NoError(t, err)
	assert.Contains(t, out, "https://pay.example.com/checkout/nutrition")
}

func TestShell_Run(t *testing.T) {
	app := newTestApp(t)
	out := &syncBuffer{}
	input := strings.NewReader("help\nwhoami\nbogus\nquit\nwhoami\n")

	require.NoError(t, NewShell(app.App, input, out).Run(context.Background()))

	text := out.Take()
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, "not signed in")
	assert.Contains(t, text, "unknown command: bogus")
	assert.Equal(t, 1, strings.Count(text, "not signed in"), "commands after quit are not run")
}

func TestShell_RunStopsAtEOF(t *testing.T) {
	app := newTestApp(t)
	out := &syncBuffer{}
	require.NoError(t, NewShell(app.App, strings.NewReader("whoami"), out).Run(context.Background()))
	assert.Contains(t, out.Take(), "not signed in")
}
