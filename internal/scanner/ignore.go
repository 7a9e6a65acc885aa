package scanner

import (
	"strings"

	"github.com/gobwas/glob"
)

// rule is one compiled ignore pattern. A trailing "/" restricts the
// pattern to directories, mirroring gitignore semantics.
type rule struct {
	g       glob.Glob
	dirOnly bool
}

// Globs compiles a set of glob/gitignore-style patterns into an
// IgnoreSet, grounded on the glob matcher syncthing uses for its own
// ignore-pattern engine.
type Globs struct {
	rules []rule
}

func NewGlobs(patterns []string) (*Globs, error) {
	gs := &Globs{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		dirOnly := strings.HasSuffix(p, "/")
		pat := strings.TrimSuffix(p, "/")
		if !strings.Contains(pat, "/") {
			pat = "**/" + pat
		}
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, err
		}
		gs.rules = append(gs.rules, rule{g: g, dirOnly: dirOnly})
	}
	return gs, nil
}

func (gs *Globs) Match(relPath string, isDir bool) bool {
	for _, r := range gs.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.g.Match(relPath) {
			return true
		}
	}
	return false
}
