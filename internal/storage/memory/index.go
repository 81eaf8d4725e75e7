package memory

import (
	"strings"

	"github.com/yndnr/dzmesh-go/pkg/cmap"
)

// NameIndex maps lower-cased character names to character ids.
//
// Names are unique among connected characters; a later Add for the same
// name replaces the previous id.
type NameIndex struct {
	index *cmap.Map[string, uint32]
}

// NewNameIndex creates an empty index.
func NewNameIndex() *NameIndex {
	return &NameIndex{
		index: cmap.New[string, uint32](),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add maps name to id.
func (i *NameIndex) Add(name string, id uint32) {
	if name == "" {
		return
	}
	i.index.Set(normalize(name), id)
}

// Remove deletes name only while it still maps to id, so a reconnect under
// the same name is not undone by the old session's removal.
func (i *NameIndex) Remove(name string, id uint32) {
	if name == "" {
		return
	}
	i.index.DeleteIf(normalize(name), func(current uint32) bool { return current == id })
}

// Get returns the id mapped to name.
func (i *NameIndex) Get(name string) (uint32, bool) {
	if name == "" {
		return 0, false
	}
	return i.index.Get(normalize(name))
}

// Len returns the number of names.
func (i *NameIndex) Len() int {
	return i.index.Count()
}
