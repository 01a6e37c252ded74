package index

import (
	"path"
	"sort"
	"strings"
)

// resolver matches wiki-link targets against the set of note paths.
type resolver struct {
	exact map[string]string   // lower(path without .md) → path
	stems map[string][]string // lower(basename without .md) → paths
}

func newResolver(paths map[string]struct{}) *resolver {
	r := &resolver{
		exact: make(map[string]string, len(paths)),
		stems: make(map[string][]string, len(paths)),
	}
	for p := range paths {
		key := strings.ToLower(strings.TrimSuffix(p, ".md"))
		r.exact[key] = p
		stem := path.Base(key)
		r.stems[stem] = append(r.stems[stem], p)
	}
	for _, ps := range r.stems {
		sort.Strings(ps)
	}
	return r
}

func linkKey(target string) string {
	t := strings.TrimSpace(strings.ReplaceAll(target, "\\", "/"))
	t = strings.TrimPrefix(t, "/")
	if strings.HasSuffix(strings.ToLower(t), ".md") {
		t = t[:len(t)-3]
	}
	return strings.ToLower(path.Clean(t))
}

// resolve finds the note for target referenced from the note at from. An
// exact path wins; otherwise notes whose path ends with the target are
// considered, preferring the source's directory, then the shortest path.
func (r *resolver) resolve(target, from string) (string, bool) {
	key := linkKey(target)
	if key == "" || key == "." {
		return "", false
	}
	if p, ok := r.exact[key]; ok {
		return p, true
	}

	var candidates []string
	for _, p := range r.stems[path.Base(key)] {
		lp := strings.ToLower(strings.TrimSuffix(p, ".md"))
		if lp == key || strings.HasSuffix(lp, "/"+key) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	fromDir := path.Dir(from)
	sort.SliceStable(candidates, func(i, j int) bool {
		si := path.Dir(candidates[i]) == fromDir
		sj := path.Dir(candidates[j]) == fromDir
		if si != sj {
			return si
		}
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) < len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], true
}

// pathResolver returns the cached resolver, building it from the indexed
// paths on first use after a write.
func (db *DB) pathResolver() (*resolver, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.res != nil {
		return db.res, nil
	}
	paths, err := db.AllPaths()
	if err != nil {
		return nil, err
	}
	db.res = newResolver(paths)
	return db.res, nil
}

// ResolveLink resolves a single wiki-link target written in the note at from.
func (db *DB) ResolveLink(target, from string) (string, bool, error) {
	r, err := db.pathResolver()
	if err != nil {
		return "", false, err
	}
	p, ok := r.resolve(target, from)
	return p, ok, nil
}

// ResolvedLinks returns source path → resolved target paths for the whole
// vault. Unresolvable targets and self references are omitted.
func (db *DB) ResolvedLinks() (map[string][]string, error) {
	r, err := db.pathResolver()
	if err != nil {
		return nil, err
	}
	raw, err := db.rawLinks()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(raw))
	for source, targets := range raw {
		seen := make(map[string]struct{}, len(targets))
		for _, t := range targets {
			p, ok := r.resolve(t, source)
			if !ok || p == source {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out[source] = append(out[source], p)
		}
	}
	return out, nil
}
