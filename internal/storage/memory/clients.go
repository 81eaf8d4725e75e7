package memory

import (
	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/pkg/cmap"
)

// Clients is the table of characters connected to one zone process.
type Clients struct {
	chars *cmap.Map[uint32, *domain.Character]
	names *NameIndex
}

// NewClients creates an empty table.
func NewClients() *Clients {
	return &Clients{
		chars: cmap.New[uint32, *domain.Character](),
		names: NewNameIndex(),
	}
}

// Add registers a connected character, replacing an earlier session with
// the same id.
func (c *Clients) Add(ch *domain.Character) {
	if ch == nil || ch.ID == 0 {
		return
	}
	if old, ok := c.chars.Get(ch.ID); ok && !domain.NameEquals(old.Name, ch.Name) {
		c.names.Remove(old.Name, old.ID)
	}
	c.chars.Set(ch.ID, ch)
	c.names.Add(ch.Name, ch.ID)
}

// Remove unregisters a character and returns it.
func (c *Clients) Remove(id uint32) (*domain.Character, bool) {
	ch, ok := c.chars.Pop(id)
	if !ok {
		return nil, false
	}
	c.names.Remove(ch.Name, ch.ID)
	return ch, true
}

// Character returns a connected character by id.
func (c *Clients) Character(id uint32) (*domain.Character, bool) {
	return c.chars.Get(id)
}

// CharacterByName returns a connected character by case-insensitive name.
func (c *Clients) CharacterByName(name string) (*domain.Character, bool) {
	id, ok := c.names.Get(name)
	if !ok {
		return nil, false
	}
	return c.chars.Get(id)
}

// InInstance returns the characters currently inside the given instance.
func (c *Clients) InInstance(zoneID, instanceID uint32) []*domain.Character {
	var out []*domain.Character
	c.chars.Range(func(_ uint32, ch *domain.Character) bool {
		if ch.ZoneID == zoneID && ch.InstanceID == instanceID {
			out = append(out, ch)
		}
		return true
	})
	return out
}

// Len returns the number of connected characters.
func (c *Clients) Len() int {
	return c.chars.Count()
}
