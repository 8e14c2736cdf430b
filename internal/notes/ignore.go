package notes

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
)

// IgnoreFiles are read from the notes root, in order, when a Dir is opened.
var IgnoreFiles = []string{".gitignore", ".amannotesignore"}

// Matcher matches slash-separated relative paths against gitignore-style
// patterns. The last matching pattern decides, so "!keep.md" can re-include
// a file excluded by an earlier rule.
type Matcher struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// NewMatcher compiles patterns. Blank lines and comments are skipped.
func NewMatcher(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

// Add compiles one pattern line.
func (m *Matcher) Add(line string) {
	p := strings.TrimRight(line, " \t\r")
	if p == "" || strings.HasPrefix(p, "#") {
		return
	}

	var r ignoreRule
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}

	// "dir/**" excludes everything below dir, which is the same as "dir/".
	if trimmed, ok := strings.CutSuffix(p, "/**"); ok && trimmed != "" && trimmed != "**" {
		p = trimmed + "/"
	}
	if trimmed, ok := strings.CutSuffix(p, "/"); ok {
		r.dirOnly = true
		p = trimmed
	}
	if trimmed, ok := strings.CutPrefix(p, "/"); ok {
		r.anchored = true
		p = trimmed
	} else if strings.Contains(p, "/") && !strings.HasPrefix(p, "**/") {
		r.anchored = true
	}
	if p == "" {
		return
	}

	r.re = regexp.MustCompile("^" + globToRegexp(p) + "$")
	m.rules = append(m.rules, r)
}

// AddFile reads patterns from an ignore file. A missing file is not an error.
func (m *Matcher) AddFile(name string) error {
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read ignore file %s: %w", name, err)
	}
	return nil
}

// Len reports the number of compiled rules.
func (m *Matcher) Len() int { return len(m.rules) }

// Match reports whether rel (slash-separated, relative to the notes root)
// is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = path.Clean(strings.TrimPrefix(rel, "./"))
	parts := strings.Split(rel, "/")

	ignored := false
	for _, r := range m.rules {
		if r.matches(parts, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r ignoreRule) matches(parts []string, isDir bool) bool {
	// A rule matching a parent directory covers everything beneath it.
	for i := range parts {
		if r.dirOnly && i == len(parts)-1 && !isDir {
			break
		}
		prefix := strings.Join(parts[:i+1], "/")
		if r.re.MatchString(prefix) {
			return true
		}
		if !r.anchored && r.re.MatchString(parts[i]) {
			return true
		}
	}
	return false
}

// globToRegexp translates gitignore glob syntax into a regular expression
// body. "*" and "?" never cross a slash; "**" does.
func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				if i+2 < len(glob) && glob[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
