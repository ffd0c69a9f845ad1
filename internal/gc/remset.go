package gc

// remEntry records one barrier-observed store: an old/large source whose
// payload now references a young target.
type remEntry struct {
	source Ref
	target Ref
}

// rememberedSet is the explicit record of old/large objects known to point
// into the young generations, complementary to the card table. Both are
// cleared together at the end of every minor collection.
type rememberedSet struct {
	entries []remEntry
	seen    map[remEntry]struct{}
}

func newRememberedSet() *rememberedSet {
	return &rememberedSet{
		seen: make(map[remEntry]struct{}),
	}
}

// add records a pair once; duplicate stores are ignored.
func (rs *rememberedSet) add(source, target Ref) {
	e := remEntry{source: source, target: target}
	if _, ok := rs.seen[e]; ok {
		return
	}

	rs.seen[e] = struct{}{}
	rs.entries = append(rs.entries, e)
}

// clear empties the set. The backing storage is reused.
func (rs *rememberedSet) clear() {
	rs.entries = rs.entries[:0]
	clear(rs.seen)
}

func (rs *rememberedSet) len() int { return len(rs.entries) }
