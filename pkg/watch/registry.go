// Package watch implements the watch registry and the pending-event queue
// that fans mutations out to interested domains.
package watch

import (
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/lithammer/shortuuid/v4"

	"github.com/firscity/zephyr-xenlib/pkg/base"
)

// Entry is one watch subscription. ID is an internal,
// never-wire-visible identifier minted so trace logs can correlate a
// register/fire/drain sequence for the same subscription.
type Entry struct {
	ID         string
	PrefixKey  string
	Token      []byte
	OwnerDomID uint16
	Relative   bool
}

// Registry is the process-wide watch list, guarded by a single mutex.
type Registry struct {
	mu      sync.Mutex
	entries []*Entry
	log     *base.Logger
}

// NewRegistry builds an empty watch registry.
func NewRegistry(log *base.Logger) *Registry {
	return &Registry{log: log}
}

// Register looks up an existing entry matching (path, token) globally. If
// found, its Relative flag is refreshed and created is false. Otherwise a
// new entry is appended and created is true.
func (r *Registry) Register(path string, token []byte, ownerDomID uint16, relative bool) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.PrefixKey == path && bytes.Equal(e.Token, token) {
			e.Relative = relative
			return false
		}
	}
	entry := &Entry{
		ID:         shortuuid.New(),
		PrefixKey:  path,
		Token:      append([]byte(nil), token...),
		OwnerDomID: ownerDomID,
		Relative:   relative,
	}
	r.entries = append(r.entries, entry)
	r.log.Tracef("watch registered id=%s path=%s owner=%d", entry.ID, path, ownerDomID)
	return true
}

// Unregister removes the (path, token) watch owned by ownerDomID, if any.
func (r *Registry) Unregister(path string, token []byte, ownerDomID uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.PrefixKey == path && bytes.Equal(e.Token, token) && e.OwnerDomID == ownerDomID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ResetAll drops every watch globally. handle_reset_watches in the
// original source does this rather than scoping to the caller; it reads
// as overbroad but is kept as the behavior to replicate.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// PurgeDomain removes every watch owned by domID, used during domain
// teardown.
func (r *Registry) PurgeDomain(domID uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.OwnerDomID != domID {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// MatchingForPath returns every entry whose PrefixKey is a byte-prefix of
// path, regardless of owner. This is deliberately a raw byte-prefix test, not a
// path-segment-aware one -- a watch on "/a" also matches a write to "/ab",
// reproducing the original source's memcmp-based matching exactly (distinct
// from the (path,token) identity check above, which is exact equality).
func (r *Registry) MatchingForPath(path string) []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*Entry
	for _, e := range r.entries {
		if strings.HasPrefix(path, e.PrefixKey) {
			matches = append(matches, e)
		}
	}
	return matches
}

// OwnedMatchingForPath returns the entries owned by domID whose PrefixKey
// is a byte-prefix of path, used by the worker loop when draining pending
// events into WATCH_EVENT replies.
func (r *Registry) OwnedMatchingForPath(domID uint16, path string) []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*Entry
	for _, e := range r.entries {
		if e.OwnerDomID == domID && strings.HasPrefix(path, e.PrefixKey) {
			matches = append(matches, e)
		}
	}
	return matches
}

// ReportedPath returns the path to report in a WATCH_EVENT for this entry:
// the stored absolute path, or -- when Relative is true -- that path with
// the owning domain's "/local/domain/<domid>/" prefix stripped.
func (e *Entry) ReportedPath(path string) string {
	if !e.Relative {
		return path
	}
	prefix := domainPrefix(e.OwnerDomID)
	if strings.HasPrefix(path, prefix) {
		return path[len(prefix):]
	}
	return path
}

func domainPrefix(domid uint16) string {
	return "/local/domain/" + strconv.FormatUint(uint64(domid), 10) + "/"
}
