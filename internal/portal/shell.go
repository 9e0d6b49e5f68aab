// ABOUTME: Interactive terminal portal with guarded navigation between views
// ABOUTME: Each view owns a mount scope closed on navigation so stale loads are dropped

package portal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/guard"
	"github.com/2389/fitportal/internal/mount"
)

// syncTimeout bounds how long the shell waits for the session to reflect
// a sign-in or sign-out.
const syncTimeout = 2 * time.Second

// maxRedirects stops redirect loops between guarded views.
const maxRedirects = 4

var errQuit = errors.New("quit")

// view is the currently mounted route.
type view struct {
	match   guard.Match
	guard   *guard.Guard
	scope   *mount.Scope
	stop    func()
	changed chan struct{}
	handled guard.State
	settled bool
}

// Shell is the terminal front end of the portal.
type Shell struct {
	app *App
	in  io.Reader

	outMu sync.Mutex
	out   io.Writer

	current *view
}

// NewShell returns a shell reading commands from in and writing to out.
func NewShell(app *App, in io.Reader, out io.Writer) *Shell {
	return &Shell{app: app, in: in, out: out}
}

func (s *Shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) colorf(c *color.Color, format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	c.Fprintf(s.out, format, args...)
}

var (
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	gray   = color.New(color.FgHiBlack)
)

// printErr shows err's user-facing message and logs the detail.
func (s *Shell) printErr(err error) {
	s.app.Logger.Debug("command failed", "error", err)
	msg := apperr.Message(err)
	if _, ok := apperr.As(err); !ok {
		msg = err.Error()
	}
	s.colorf(red, "  ✗ %s\n", msg)
}

// Run reads commands until quit, EOF, or ctx is canceled.
func (s *Shell) Run(ctx context.Context) error {
	defer s.leave()

	s.colorf(cyan, "fitportal shell\n")
	s.printf("Type help for commands.\n\n")
	if err := s.navigate(ctx, guard.HomePath); err != nil {
		s.printErr(err)
	}

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), 1024*1024) // 1MB max input
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		s.prompt()
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				s.printf("\n")
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				return nil
			}
			line = l
		}

		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			s.printErr(err)
		}
		s.settle(ctx)
	}
}

func (s *Shell) prompt() {
	path := "?"
	if s.current != nil {
		path = s.current.match.Path
	}
	who := "guest"
	if p := s.app.Session.Current(); p != nil {
		who = p.Email
	}
	s.colorf(gray, "%s %s", who, path)
	s.printf("> ")
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	args, err := splitArgs(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "signup":
		return s.cmdSignUp(ctx, rest)
	case "login":
		return s.cmdLogin(ctx, rest)
	case "logout":
		return s.cmdLogout(ctx)
	case "whoami":
		return s.cmdWhoAmI()
	case "go", "cd":
		if len(rest) != 1 {
			return fmt.Errorf("usage: go <path>")
		}
		return s.navigate(ctx, rest[0])
	case "content":
		return s.cmdContent(ctx, rest)
	case "progress":
		return s.cmdProgress(ctx, rest)
	case "track":
		return s.cmdTrack(ctx, rest)
	case "stats":
		return s.cmdStats(ctx, rest)
	case "users":
		return s.cmdUsers(ctx, rest)
	case "checkout":
		return s.cmdCheckout(rest)
	}
	return fmt.Errorf("unknown command: %s (try help)", cmd)
}

func (s *Shell) printHelp() {
	s.printf(`Commands:
  signup <email> <password>          Create an account and sign in
  login <email> <password>           Sign in
  logout                             Sign out
  whoami                             Show the signed-in principal
  go <path>                          Navigate (/, /dashboard, /category/fitness, /admin/...)
  content list [--category c] [--access free|premium] [--tag t] [--all] [--limit n]
  content show <id> [--html]
  content create --title t --body b --category c [--subcategory s] [--tags a,b]
                 [--premium --price n] [--media uri,...] [--schedule date]
  content update <id> [same flags as create] [--free] [--unschedule]
  content delete <id>
  progress add [--date d] [--weight n] [--bodyfat n] [--chest n] [--waist n]
               [--hips n] [--arms n] [--thighs n] [--notes s]
  progress list [--from d] [--to d]
  progress latest
  progress delete <id>
  track <workout-id> <duration>      Record a completed workout (e.g. 45m)
  stats <content-id>                 Views and completions for a content item
  users list [--role r]              (admin)
  users role <id> <role>             (admin)
  users disable|enable <id>          (admin)
  users audit [--limit n]            (admin)
  checkout <package>                 Show the checkout link for a package
  help, quit
`)
}

// leave unmounts the current view.
func (s *Shell) leave() {
	if s.current == nil {
		return
	}
	s.current.stop()
	s.current.scope.Close()
	s.current = nil
}

// navigate mounts the view for path, following static and guard redirects.
func (s *Shell) navigate(ctx context.Context, path string) error {
	for hop := 0; hop < maxRedirects; hop++ {
		match, err := s.app.Router.Resolve(path)
		if err != nil {
			return fmt.Errorf("page not found: %s", path)
		}
		if match.Route.RedirectTo != "" {
			path = match.Route.RedirectTo
			continue
		}

		s.mount(match)
		next, done := s.await(ctx)
		if done {
			return nil
		}
		path = next
	}
	return fmt.Errorf("too many redirects")
}

// mount replaces the current view with one for match.
func (s *Shell) mount(match guard.Match) {
	s.leave()

	v := &view{
		match:   match,
		guard:   guard.New(match.Route.Requirement),
		scope:   mount.NewScope(match.Route.Name, s.app.Logger),
		changed: make(chan struct{}, 1),
	}
	v.stop = guard.Watch(v.guard, s.app.Session, func(guard.State) {
		select {
		case v.changed <- struct{}{}:
		default:
		}
	})
	s.current = v
}

// await waits for the current view's guard to leave Loading and acts on
// the state. It returns a redirect target, or done when nothing more
// should happen.
func (s *Shell) await(ctx context.Context) (target string, done bool) {
	v := s.current
	timer := time.NewTimer(syncTimeout)
	defer timer.Stop()
	for v.guard.State().Phase == guard.Loading {
		select {
		case <-v.changed:
		case <-timer.C:
			s.colorf(yellow, "  … still loading session\n")
			return "", true
		case <-ctx.Done():
			return "", true
		}
	}
	return s.apply(ctx, v)
}

// apply renders an admitted view or reports a redirect. A state already
// handled for this view is ignored.
func (s *Shell) apply(ctx context.Context, v *view) (target string, done bool) {
	state := v.guard.State()
	if v.settled && state == v.handled {
		return "", true
	}
	v.handled, v.settled = state, true

	switch state.Phase {
	case guard.Admitted:
		s.render(ctx, v)
		return "", true
	case guard.Redirect:
		s.colorf(yellow, "  → %s requires %s, redirecting to %s\n", v.match.Path, v.guard.Requirement(), state.Target)
		return state.Target, false
	}
	return "", true
}

// settle applies any guard change the session delivered since the last
// command, such as a sign-out while on the dashboard.
func (s *Shell) settle(ctx context.Context) {
	v := s.current
	if v == nil {
		return
	}
	select {
	case <-v.changed:
	default:
		return
	}
	if target, done := s.apply(ctx, v); !done {
		if err := s.navigate(ctx, target); err != nil {
			s.printErr(err)
		}
	}
}

// syncSession waits until the session reflects want, then feeds the
// current guard so the next settle sees the new state.
func (s *Shell) syncSession(ctx context.Context, want func(*access.Principal) bool) {
	deadline := time.Now().Add(syncTimeout)
	for {
		p, resolved := s.app.Session.Snapshot()
		if resolved && want(p) {
			if v := s.current; v != nil && v.guard.Observe(p) {
				select {
				case v.changed <- struct{}{}:
				default:
				}
			}
			return
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			s.app.Logger.Warn("session did not settle in time")
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
