package common

import "strconv"

// RollingIndex is an append-only window over a sequence of items numbered
// from 0. It keeps between size and 2*size of the most recent items in memory;
// older items are forgotten and requesting them yields a TooLate error.
type RollingIndex struct {
	name      string
	size      int
	lastIndex int
	items     []interface{}
}

// NewRollingIndex creates an empty RollingIndex. name is only used in error
// messages.
func NewRollingIndex(name string, size int) *RollingIndex {
	if size < 1 {
		size = 1
	}
	return &RollingIndex{
		name:      name,
		size:      size,
		items:     make([]interface{}, 0, 2*size),
		lastIndex: -1,
	}
}

// LastIndex returns the index of the most recent item, or -1 if empty.
func (r *RollingIndex) LastIndex() int {
	return r.lastIndex
}

// Append adds item at the end of the sequence and returns its index.
func (r *RollingIndex) Append(item interface{}) int {
	if len(r.items) >= 2*r.size {
		r.roll()
	}
	r.items = append(r.items, item)
	r.lastIndex++
	return r.lastIndex
}

// Since returns the cached items with an index strictly greater than
// skipIndex, oldest first. Use -1 to get everything still in the window.
func (r *RollingIndex) Since(skipIndex int) ([]interface{}, error) {
	res := make([]interface{}, 0)

	if skipIndex >= r.lastIndex {
		return res, nil
	}

	oldestCachedIndex := r.lastIndex - len(r.items) + 1
	if skipIndex+1 < oldestCachedIndex {
		return res, NewStoreErr(r.name, TooLate, strconv.Itoa(skipIndex))
	}

	start := skipIndex - oldestCachedIndex + 1

	return append(res, r.items[start:]...), nil
}

// GetItem returns the item at index.
func (r *RollingIndex) GetItem(index int) (interface{}, error) {
	oldestCached := r.lastIndex - len(r.items) + 1
	if index < oldestCached {
		return nil, NewStoreErr(r.name, TooLate, strconv.Itoa(index))
	}
	pos := index - oldestCached
	if pos >= len(r.items) {
		return nil, NewStoreErr(r.name, KeyNotFound, strconv.Itoa(index))
	}
	return r.items[pos], nil
}

func (r *RollingIndex) roll() {
	newList := make([]interface{}, 0, 2*r.size)
	newList = append(newList, r.items[r.size:]...)
	r.items = newList
}
