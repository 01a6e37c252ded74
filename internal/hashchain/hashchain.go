// Package hashchain computes note content hashes and keeps the per-UID
// publish history used to derive prior versions.
package hashchain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/starford/folio/internal/profile"
)

// snapshotDomainKey separates note snapshot hashes from any other BLAKE3 use.
// Changing it changes every published hash.
var snapshotDomainKey = [32]byte{
	'f', 'o', 'l', 'i', 'o', '.', 'n', 'o', 't', 'e', '.',
	's', 'n', 'a', 'p', 's', 'h', 'o', 't',
}

// Compute returns the hex digest of a note snapshot. Each field is written
// with a length prefix so no two distinct (uid, title, raw) triples collide.
func Compute(uid, title, raw string) string {
	h, err := blake3.NewKeyed(snapshotDomainKey[:])
	if err != nil {
		panic(fmt.Sprintf("hashchain: keyed hasher: %v", err))
	}
	var lenBuf [8]byte
	for _, field := range []string{uid, title, raw} {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(field)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// History maps a UID to its published hashes, oldest first.
type History map[string][]string

// DerivePrior returns the most recent hash for uid that differs from current,
// or nil when there is none.
func (h History) DerivePrior(uid, current string) *string {
	entries := h[uid]
	n := len(entries)
	if n == 0 {
		return nil
	}
	if entries[n-1] == current {
		if n < 2 {
			return nil
		}
		prior := entries[n-2]
		return &prior
	}
	prior := entries[n-1]
	return &prior
}

// AppendIfChanged records hash for uid unless it equals the last entry.
// It reports whether the history grew.
func (h History) AppendIfChanged(uid, hash string) bool {
	entries := h[uid]
	if n := len(entries); n > 0 && entries[n-1] == hash {
		return false
	}
	h[uid] = append(entries, hash)
	return true
}

// Load reads the profile's history. A missing or corrupt document yields an
// empty history; corrupt documents are quarantined by the workspace.
func Load(ws *profile.Workspace) (History, error) {
	h := make(History)
	loaded, err := ws.LoadJSON(profile.HistoryFile, &h)
	if err != nil {
		return nil, fmt.Errorf("hashchain: load: %w", err)
	}
	if !loaded || h == nil {
		return make(History), nil
	}
	return h, nil
}

// Save rewrites the profile's history document.
func Save(ws *profile.Workspace, h History) error {
	if err := ws.WriteJSON(profile.HistoryFile, h); err != nil {
		return fmt.Errorf("hashchain: save: %w", err)
	}
	return nil
}
