package rpak

import "fmt"

// SymbolID identifies an interned string in a SymbolTable.
type SymbolID uint32

// InvalidSymbolID is returned by Add only together with an error; Get
// panics if asked for it.
const InvalidSymbolID SymbolID = 0xFFFFFFFF

// StringPool stores interned strings in stable, append-only storage: once a
// string has been added its backing slice is never moved, so a returned
// index remains valid for the lifetime of the pool.
type StringPool struct {
	entries []string
}

func NewStringPool() *StringPool {
	return &StringPool{}
}

// Intern appends str to the pool unconditionally and returns its index.
func (p *StringPool) Intern(str string) int {
	p.entries = append(p.entries, str)
	return len(p.entries) - 1
}

func (p *StringPool) Get(idx int) string {
	return p.entries[idx]
}

func (p *StringPool) Len() int { return len(p.entries) }

// SymbolTable wraps a StringPool with a hash-indexed lookup so that adding
// the same string twice returns the same SymbolID. Used by the DMX parser
// (external collaborator) and generically for hash-dict compaction.
type SymbolTable struct {
	pool       *StringPool
	index      map[string]SymbolID
	discarded  map[SymbolID]bool
	caseFold   bool
	retainedSz int64
	discardSz  int64
}

// NewSymbolTable builds an empty table. caseFold, when true, normalizes
// strings to lowercase before hashing/comparing (construct-time flag, per
// spec §4.1).
func NewSymbolTable(caseFold bool) *SymbolTable {
	return &SymbolTable{
		pool:      NewStringPool(),
		index:     make(map[string]SymbolID),
		discarded: make(map[SymbolID]bool),
		caseFold:  caseFold,
	}
}

func (t *SymbolTable) normalize(s string) string {
	if !t.caseFold {
		return s
	}
	return toLowerASCII(s)
}

// Add interns str if not already present and returns its SymbolID.
func (t *SymbolTable) Add(str string) (SymbolID, error) {
	key := t.normalize(str)
	if id, ok := t.index[key]; ok {
		return id, nil
	}

	if uint32(t.pool.Len()) >= 0xFFFFFFFE {
		return InvalidSymbolID, fmt.Errorf("symbol table exhausted: cannot add %q", str)
	}

	idx := t.pool.Intern(str)
	id := SymbolID(idx)
	t.index[key] = id
	t.retainedSz += int64(len(str))
	return id, nil
}

// Get returns the string for id. It panics on an invalid id, matching the
// original's "never happens in a correct build" contract.
func (t *SymbolTable) Get(id SymbolID) string {
	if int(id) < 0 || int(id) >= t.pool.Len() {
		panic(fmt.Sprintf("rpak: invalid symbol id %d", id))
	}
	return t.pool.Get(int(id))
}

// Find looks up str without interning it.
func (t *SymbolTable) Find(str string) (SymbolID, bool) {
	id, ok := t.index[t.normalize(str)]
	return id, ok
}

// MarkDiscarded records that id no longer needs to appear in a compacted
// output (e.g. the DMX baker drops field-name strings whose layout is
// implied by a schema).
func (t *SymbolTable) MarkDiscarded(id SymbolID) {
	if t.discarded[id] {
		return
	}
	t.discarded[id] = true
	t.discardSz += int64(len(t.pool.Get(int(id))))
	t.retainedSz -= int64(len(t.pool.Get(int(id))))
}

// Counts returns (total, retained, discarded) symbol counts.
func (t *SymbolTable) Counts() (total, retained, discarded int) {
	total = t.pool.Len()
	discarded = len(t.discarded)
	retained = total - discarded
	return
}

// Bytes returns (total, retained, discarded) byte counts.
func (t *SymbolTable) Bytes() (total, retained, discarded int64) {
	for i := 0; i < t.pool.Len(); i++ {
		total += int64(len(t.pool.Get(i)))
	}
	retained = t.retainedSz
	discarded = t.discardSz
	return
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
