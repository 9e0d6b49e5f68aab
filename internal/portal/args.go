// ABOUTME: Shell line tokenizer and --flag parsing
// ABOUTME: Double and single quotes group words; backslash escapes inside double quotes

package portal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// splitArgs splits a command line into words.
func splitArgs(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote == '"' && r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 || escaped {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

// flagSet holds parsed --name value pairs and positional arguments.
type flagSet struct {
	values     map[string]string
	set        map[string]bool
	positional []string
}

// parseFlags parses args. Names in valued take a value ("--title x" or
// "--title=x"); names in switches are booleans. Unknown flags are errors.
func parseFlags(args []string, valued, switches []string) (*flagSet, error) {
	fs := &flagSet{values: map[string]string{}, set: map[string]bool{}}
	isValued := toSet(valued)
	isSwitch := toSet(switches)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || arg == "--" {
			fs.positional = append(fs.positional, arg)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		switch {
		case isSwitch[name]:
			if hasValue {
				return nil, fmt.Errorf("--%s takes no value", name)
			}
			fs.set[name] = true
		case isValued[name]:
			if !hasValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("--%s requires a value", name)
				}
				value = args[i+1]
				i++
			}
			fs.values[name] = value
			fs.set[name] = true
		default:
			return nil, fmt.Errorf("unknown flag: --%s", name)
		}
	}
	return fs, nil
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func (fs *flagSet) has(name string) bool {
	return fs.set[name]
}

func (fs *flagSet) str(name string) string {
	return fs.values[name]
}

// strPtr returns nil when the flag was not given.
func (fs *flagSet) strPtr(name string) *string {
	if !fs.has(name) {
		return nil
	}
	v := fs.values[name]
	return &v
}

func (fs *flagSet) float(name string) (*float64, error) {
	if !fs.has(name) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(fs.values[name], 64)
	if err != nil {
		return nil, fmt.Errorf("--%s: %q is not a number", name, fs.values[name])
	}
	return &v, nil
}

func (fs *flagSet) list(name string) []string {
	raw := fs.values[name]
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// date parses YYYY-MM-DD or RFC 3339.
func (fs *flagSet) date(name string) (*time.Time, error) {
	if !fs.has(name) {
		return nil, nil
	}
	t, err := parseDate(fs.values[name])
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date (YYYY-MM-DD or RFC 3339)", s)
	}
	return t.UTC(), nil
}
