package history

// MaxLayoutsPerClass bounds the recency list kept for each window class.
const MaxLayoutsPerClass = 5

// Entry is a layout and the time it was last chosen.
type Entry struct {
	LayoutID string `json:"layoutId"`
	LastUsed int64  `json:"lastUsed"`
}

// Index is the durable part of the lookup state. It is a materialized view of
// the event log: replaying the events in order always rebuilds it.
type Index struct {
	byClass map[string][]Entry
	byTitle map[string]Entry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byClass: make(map[string][]Entry),
		byTitle: make(map[string]Entry),
	}
}

// Rebuild resets the index and replays events in order.
func (idx *Index) Rebuild(events []Event) {
	idx.byClass = make(map[string][]Entry)
	idx.byTitle = make(map[string]Entry)
	for _, ev := range events {
		idx.Apply(ev)
	}
}

// Apply folds one event into the index. The class list keeps the event's
// layout at the front, unique, and at most MaxLayoutsPerClass long. The
// title entry is overwritten unconditionally.
func (idx *Index) Apply(ev Event) {
	entry := Entry{LayoutID: ev.LayoutID, LastUsed: ev.Timestamp}

	current := idx.byClass[ev.ClassHash]
	next := make([]Entry, 0, MaxLayoutsPerClass)
	next = append(next, entry)
	for _, e := range current {
		if e.LayoutID == ev.LayoutID {
			continue
		}
		if len(next) == MaxLayoutsPerClass {
			break
		}
		next = append(next, e)
	}
	idx.byClass[ev.ClassHash] = next
	idx.byTitle[ev.titleKey()] = entry
}

// ByTitle returns the latest entry for the exact class and title hashes.
func (idx *Index) ByTitle(classHash, titleHash string) (Entry, bool) {
	e, ok := idx.byTitle[titleKey(classHash, titleHash)]
	return e, ok
}

// ByClass returns the most recent entry for the class.
func (idx *Index) ByClass(classHash string) (Entry, bool) {
	entries := idx.byClass[classHash]
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[0], true
}

// ClassEntries returns a copy of the recency list for the class, newest first.
func (idx *Index) ClassEntries(classHash string) []Entry {
	entries := idx.byClass[classHash]
	if len(entries) == 0 {
		return nil
	}
	return append([]Entry(nil), entries...)
}

// Classes returns the number of tracked classes.
func (idx *Index) Classes() int {
	return len(idx.byClass)
}

// Titles returns the number of tracked class:title keys.
func (idx *Index) Titles() int {
	return len(idx.byTitle)
}

func (idx *Index) retains(ev Event) bool {
	for _, e := range idx.byClass[ev.ClassHash] {
		if e.LayoutID == ev.LayoutID {
			return true
		}
	}
	return false
}
