package object

// Table is an open-addressed hash map keyed by interned strings. Capacity is
// always a power of two so the probe sequence can mask instead of mod.
// Deleted slots leave tombstones (nil key, true value) that keep probe
// chains intact.
type Table struct {
	count   int // live entries plus tombstones
	entries []entry
}

type entry struct {
	key   *String
	value Value
}

const tableMaxLoad = 0.75

func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].key != nil {
			n++
		}
	}
	return n
}

func (t *Table) Get(key *String) (Value, bool) {
	if t.count == 0 {
		return Nil(), false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return Nil(), false
	}
	return e.value, true
}

// Set stores value under key and reports whether the key was absent.
func (t *Table) Set(key *String, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.adjustCapacity()
	}
	e := t.findEntry(t.entries, key)
	isNew := e.key == nil
	if isNew && e.value.IsNil() {
		t.count++
	}
	e.key = key
	e.value = value
	return isNew
}

// Delete tombstones the entry so later probes keep walking past it.
func (t *Table) Delete(key *String) bool {
	if t.count == 0 {
		return false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = Bool(true)
	return true
}

// AddAll copies every entry of from into t. Used by INHERIT's method
// copy-down.
func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		e := &from.entries[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString looks a string up by content rather than identity. It is the
// intern table's lookup: the one place where string equality compares bytes.
func (t *Table) FindString(s string, hash uint32) *String {
	if t.count == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if e.value.IsNil() {
				return nil
			}
		} else if len(e.key.Value) == len(s) && e.key.Hash == hash && e.key.Value == s {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

// Range calls f for every live entry until f returns false.
func (t *Table) Range(f func(key *String, value Value) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !f(e.key, e.value) {
			return
		}
	}
}

// DeleteIf tombstones every entry whose key satisfies pred. The heap uses it
// between mark and sweep to prune unreached intern entries.
func (t *Table) DeleteIf(pred func(key *String) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && pred(e.key) {
			e.key = nil
			e.value = Bool(true)
		}
	}
}

func (t *Table) findEntry(entries []entry, key *String) *entry {
	mask := uint32(len(entries) - 1)
	idx := key.Hash & mask
	var tombstone *entry
	for {
		e := &entries[idx]
		if e.key == nil {
			if e.value.IsNil() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) adjustCapacity() {
	capacity := 8
	if len(t.entries) > 0 {
		capacity = len(t.entries) * 2
	}
	entries := make([]entry, capacity)

	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		dst := t.findEntry(entries, e.key)
		dst.key = e.key
		dst.value = e.value
		t.count++
	}
	t.entries = entries
}

func (t *Table) cost() int64 {
	return CostTable(len(t.entries))
}
