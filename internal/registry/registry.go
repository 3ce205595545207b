// Package registry canonicalizes free-form, exchange-format symbol
// strings into stable numeric SymbolIds and back. It is constructed once
// per process, shared by every reader and writer, and after warmup is
// append-only: entries are never removed or renumbered.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"mdengine/internal/quote"
)

// ValidationError reports a malformed base/quote pair passed to Register.
type ValidationError struct {
	Base  string
	Quote string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry: invalid symbol base=%q quote=%q: %s", e.Base, e.Quote, e.Msg)
}

type entry struct {
	id        quote.SymbolId
	canonical string
}

// Registry maps canonical symbols to dense SymbolIds and back. All
// exported methods are safe for concurrent use; Register serializes
// under a single mutex, while Resolve/Canonical only take read locks.
type Registry struct {
	mu sync.RWMutex

	// aliasToID maps each registered pair, per instrument type, under its
	// aliasKey; that one key serves the hyphen, slash and underscore
	// lookup forms alike. Separator-less keys go through concatSplit.
	aliasToID map[quote.InstrumentType]map[string]quote.SymbolId

	// concatSplit remembers, per instrument type, the (base, quote) split
	// discovered at registration time for a separator-less concatenation.
	// An incoming separator-less key not present here fails rather than
	// guessing a split.
	concatSplit map[quote.InstrumentType]map[string][2]string

	idToEntry map[quote.SymbolId]entry
	nextID    quote.SymbolId
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		aliasToID:   make(map[quote.InstrumentType]map[string]quote.SymbolId),
		concatSplit: make(map[quote.InstrumentType]map[string][2]string),
		idToEntry:   make(map[quote.SymbolId]entry),
	}
}

// Resolve normalizes key (uppercase, known separator split) and returns
// the SymbolId registered for (base, quote, itype), if any.
func (r *Registry) Resolve(key string, itype quote.InstrumentType) (quote.SymbolId, bool) {
	base, q, ok := splitKey(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !ok {
		split, known := r.concatSplit[itype][strings.ToUpper(strings.TrimSpace(key))]
		if !known {
			return 0, false
		}
		base, q = split[0], split[1]
	}

	id, ok := r.aliasToID[itype][aliasKey(base, q)]
	return id, ok
}

// Register idempotently assigns a SymbolId to (base, quote, itype). A
// repeat call with the same canonical triple returns the existing id.
func (r *Registry) Register(base, quote_ string, itype quote.InstrumentType) (quote.SymbolId, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote_ = strings.ToUpper(strings.TrimSpace(quote_))

	if err := validate(base, quote_); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.aliasToID[itype] == nil {
		r.aliasToID[itype] = make(map[string]quote.SymbolId)
	}
	if r.concatSplit[itype] == nil {
		r.concatSplit[itype] = make(map[string][2]string)
	}

	key := aliasKey(base, quote_)
	if id, ok := r.aliasToID[itype][key]; ok {
		return id, nil
	}

	id := r.nextID
	r.nextID++

	canonical := quote.Canonical(itype, base, quote_)
	concat := base + quote_

	// Publish every accepted alias form before returning, so a concurrent
	// Resolve under the read lock never observes a partial registration.
	r.aliasToID[itype][key] = id
	r.concatSplit[itype][concat] = [2]string{base, quote_}
	r.idToEntry[id] = entry{id: id, canonical: canonical}

	return id, nil
}

// Canonical returns the printable canonical symbol for id, if registered.
func (r *Registry) Canonical(id quote.SymbolId) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.idToEntry[id]
	if !ok {
		return "", false
	}
	return e.canonical, true
}

// All returns every SymbolId assigned so far across both instrument
// types, in ascending (registration) order.
func (r *Registry) All() []quote.SymbolId {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]quote.SymbolId, 0, len(r.idToEntry))
	for id := range r.idToEntry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// aliasKey is independent of the input separator and case-normalized:
// it is the lookup key shared by every alias form of a given (base,
// quote) pair.
func aliasKey(base, quote_ string) string {
	return strings.ToUpper(base) + "|" + strings.ToUpper(quote_)
}

// splitKey attempts to split a SymbolKey using one of the three known
// separators. It returns ok=false for a separator-less key, leaving that
// case to the registry's recorded concatenation split.
func splitKey(key string) (base, quote_ string, ok bool) {
	key = strings.TrimSpace(key)
	for _, sep := range []string{"-", "/", "_"} {
		if idx := strings.Index(key, sep); idx > 0 && idx < len(key)-1 {
			return strings.ToUpper(key[:idx]), strings.ToUpper(key[idx+len(sep):]), true
		}
	}
	return "", "", false
}

func validate(base, quote_ string) error {
	if base == "" || quote_ == "" {
		return &ValidationError{Base: base, Quote: quote_, Msg: "base and quote must be non-empty"}
	}
	if !isASCIINoSpace(base) || !isASCIINoSpace(quote_) {
		return &ValidationError{Base: base, Quote: quote_, Msg: "base and quote must be ASCII with no whitespace"}
	}
	return nil
}

func isASCIINoSpace(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 127 {
			return false
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			return false
		}
	}
	return true
}
