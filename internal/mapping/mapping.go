// Package mapping persists the slug → UID and UID → hash tables of a profile.
package mapping

import (
	"fmt"
	"sync"

	"github.com/starford/folio/internal/profile"
)

// Table holds both maps for one profile. Updates stay in memory until Save.
type Table struct {
	ws *profile.Workspace

	mu        sync.RWMutex
	slugToUID map[string]string
	uidToHash map[string]string
}

// Load reads the profile's tables. A corrupt document is quarantined and its
// map starts empty; the other map is unaffected.
func Load(ws *profile.Workspace) (*Table, error) {
	t := &Table{ws: ws}

	slugs := make(map[string]string)
	ok, err := ws.LoadJSON(profile.SlugToUIDFile, &slugs)
	if err != nil {
		return nil, fmt.Errorf("mapping: load slugs: %w", err)
	}
	if !ok || slugs == nil {
		slugs = make(map[string]string)
	}

	hashes := make(map[string]string)
	ok, err = ws.LoadJSON(profile.UIDToHashFile, &hashes)
	if err != nil {
		return nil, fmt.Errorf("mapping: load hashes: %w", err)
	}
	if !ok || hashes == nil {
		hashes = make(map[string]string)
	}

	t.slugToUID = slugs
	t.uidToHash = hashes
	return t, nil
}

// Update upserts slug → uid and uid → hash.
func (t *Table) Update(slug, uid, hash string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slugToUID[slug] = uid
	t.uidToHash[uid] = hash
}

// Save rewrites both documents.
func (t *Table) Save() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.ws.WriteJSON(profile.SlugToUIDFile, t.slugToUID); err != nil {
		return fmt.Errorf("mapping: save slugs: %w", err)
	}
	if err := t.ws.WriteJSON(profile.UIDToHashFile, t.uidToHash); err != nil {
		return fmt.Errorf("mapping: save hashes: %w", err)
	}
	return nil
}

func (t *Table) LookupHashByUID(uid string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.uidToHash[uid]
	return h, ok
}

func (t *Table) LookupUIDBySlug(slug string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.slugToUID[slug]
	return u, ok
}

// Len returns the number of slugs mapped.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slugToUID)
}
