// Package fields implements the ordered collection of frontmatter fields and
// the operations that add, edit, remove and reorder them.
package fields

import (
	"sort"

	"github.com/starford/postwriter/internal/models"
)

// Collection is an ordered set of fields, unique by id. After every
// operation the orders of its fields are exactly 0..n-1.
//
// A Collection is not safe for concurrent use.
type Collection struct {
	items  []models.Field // sorted by Order, Order == index
	nextID int64
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{nextID: 1}
}

// Len returns the number of fields.
func (c *Collection) Len() int { return len(c.items) }

// Fields returns a deep copy of the fields sorted by order.
func (c *Collection) Fields() []models.Field {
	out := make([]models.Field, len(c.items))
	for i, f := range c.items {
		out[i] = f.Clone()
	}
	return out
}

// Get returns a copy of the field with the given id.
func (c *Collection) Get(id int64) (models.Field, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return models.Field{}, false
	}
	return c.items[i].Clone(), true
}

// Add appends an empty text field and returns it.
func (c *Collection) Add() models.Field {
	f := models.Field{
		ID:    c.allocID(),
		Label: "",
		Type:  models.TypeText,
		Value: models.Null(),
		Order: len(c.items),
	}
	c.items = append(c.items, f)
	return f.Clone()
}

// Remove deletes the field with the given id and compacts the order.
// It reports whether a field was removed.
func (c *Collection) Remove(id int64) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.compact()
	return true
}

// SetLabel replaces the label of the field with the given id.
func (c *Collection) SetLabel(id int64, label string) bool {
	return c.update(id, func(f *models.Field) { f.Label = label })
}

// SetType changes the type of the field and coerces its value so the two
// never disagree.
func (c *Collection) SetType(id int64, t models.FieldType) bool {
	if !t.Valid() {
		return false
	}
	return c.update(id, func(f *models.Field) {
		f.Type = t
		f.Value = f.Value.Coerce(t)
	})
}

// SetValue replaces the value of the field, coerced to the field's type.
func (c *Collection) SetValue(id int64, v models.Value) bool {
	return c.update(id, func(f *models.Field) { f.Value = v.Coerce(f.Type) })
}

// ListItemAdd appends an empty item to a list field.
func (c *Collection) ListItemAdd(id int64) bool {
	return c.updateList(id, func(items []string) ([]string, bool) {
		return append(items, ""), true
	})
}

// ListItemSet replaces the item at index of a list field.
func (c *Collection) ListItemSet(id int64, index int, text string) bool {
	return c.updateList(id, func(items []string) ([]string, bool) {
		if index < 0 || index >= len(items) {
			return items, false
		}
		items[index] = text
		return items, true
	})
}

// ListItemRemove deletes the item at index of a list field.
func (c *Collection) ListItemRemove(id int64, index int) bool {
	return c.updateList(id, func(items []string) ([]string, bool) {
		if index < 0 || index >= len(items) {
			return items, false
		}
		return append(items[:index], items[index+1:]...), true
	})
}

// Move reinserts the source field at the position currently held by the
// target field; the fields in between shift by one. The gesture is abandoned
// when source equals target or either id is not in the collection.
// It reports whether the order changed.
func (c *Collection) Move(source, target int64) bool {
	if source == target {
		return false
	}
	c.sortStable()
	from, to := c.indexOf(source), c.indexOf(target)
	if from < 0 || to < 0 {
		return false
	}
	moved := c.items[from]
	rest := append(c.items[:from:from], c.items[from+1:]...)
	items := make([]models.Field, 0, len(c.items))
	items = append(items, rest[:to]...)
	items = append(items, moved)
	items = append(items, rest[to:]...)
	c.items = items
	c.renumber()
	return true
}

// Replace swaps the whole collection for fields, assigning each a fresh id.
// Fields are ordered by a stable sort on their Order, so ties keep input order.
func (c *Collection) Replace(fields []models.Field) {
	items := make([]models.Field, len(fields))
	for i, f := range fields {
		f = f.Clone()
		f.ID = c.allocID()
		f.Value = f.Value.Coerce(f.Type)
		items[i] = f
	}
	c.items = items
	c.compact()
}

// Restore loads persisted fields keeping their ids. Zero or duplicate ids
// are reassigned; new ids continue after the highest id seen.
func (c *Collection) Restore(fields []models.Field) {
	var maxID int64
	for _, f := range fields {
		if f.ID > maxID {
			maxID = f.ID
		}
	}
	if maxID >= c.nextID {
		c.nextID = maxID + 1
	}

	seen := make(map[int64]struct{}, len(fields))
	items := make([]models.Field, len(fields))
	for i, f := range fields {
		f = f.Clone()
		if _, dup := seen[f.ID]; dup || f.ID <= 0 {
			f.ID = c.allocID()
		}
		seen[f.ID] = struct{}{}
		if !f.Type.Valid() {
			f.Type = models.TypeText
		}
		f.Value = f.Value.Coerce(f.Type)
		items[i] = f
	}
	c.items = items
	c.compact()
}

func (c *Collection) allocID() int64 {
	if c.nextID <= 0 {
		c.nextID = 1
	}
	id := c.nextID
	c.nextID++
	return id
}

func (c *Collection) indexOf(id int64) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection) update(id int64, fn func(*models.Field)) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	fn(&c.items[i])
	return true
}

func (c *Collection) updateList(id int64, fn func([]string) ([]string, bool)) bool {
	i := c.indexOf(id)
	if i < 0 || c.items[i].Type != models.TypeList {
		return false
	}
	items, ok := fn(c.items[i].Value.Items())
	if !ok {
		return false
	}
	c.items[i].Value = models.List(items...)
	return true
}

// compact sorts by previous order and reassigns 0..n-1.
func (c *Collection) compact() {
	c.sortStable()
	c.renumber()
}

func (c *Collection) sortStable() {
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Order < c.items[j].Order
	})
}

func (c *Collection) renumber() {
	for i := range c.items {
		c.items[i].Order = i
	}
}
