// Package document owns the single edited document: its ordered fields, the
// markdown body and the visibility flag of the properties panel. Every
// mutation is persisted through a storage.Provider and announced to an
// optional change hook.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/postwriter/internal/apperr"
	"github.com/starford/postwriter/internal/checksum"
	"github.com/starford/postwriter/internal/fields"
	"github.com/starford/postwriter/internal/models"
	"github.com/starford/postwriter/internal/serializer"
	"github.com/starford/postwriter/internal/storage"
)

// ChangeKind names what a mutation touched.
type ChangeKind string

// Change kinds.
const (
	FieldAdded        ChangeKind = "field.added"
	FieldRemoved      ChangeKind = "field.removed"
	FieldUpdated      ChangeKind = "field.updated"
	FieldMoved        ChangeKind = "field.moved"
	BodyUpdated       ChangeKind = "body.updated"
	VisibilityUpdated ChangeKind = "visibility.updated"
	DocumentImported  ChangeKind = "document.imported"
	DocumentReloaded  ChangeKind = "document.reloaded"
)

// Change describes one applied mutation.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	FieldID  int64      `json:"field_id,omitempty"`
	Revision string     `json:"revision"`
}

// FieldUpdate carries the attributes to replace on one field. Nil members
// are left alone. Type is applied before Value so the value is coerced to
// the new type.
type FieldUpdate struct {
	Label *string
	Type  *models.FieldType
	Value *models.Value
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	provider storage.Provider
	fields   *fields.Collection
	body     string
	hidden   bool
	rev      string
	onChange func(Change)
	logger   *slog.Logger
}

// New creates an empty store persisting through p.
func New(p storage.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{provider: p, fields: fields.New(), logger: logger}
	s.rev = s.revisionLocked()
	return s
}

// OnChange registers fn to be called after every applied mutation. It runs
// outside the store lock.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load replaces the in-memory state with the persisted snapshot. A missing
// snapshot leaves the store empty.
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.provider.Load(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		s.logger.Info("no stored document, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("document: load: %w", err)
	}
	s.mu.Lock()
	s.restoreLocked(snap)
	s.mu.Unlock()
	return nil
}

// Reload re-reads the persisted snapshot and reports whether it differed
// from the in-memory state. Our own writes read back unchanged. The lock is
// held across the read so a mutation cannot be saved between reading and
// restoring.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	snap, err := s.provider.Load(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		s.mu.Unlock()
		return false, nil
	}
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("document: reload: %w", err)
	}

	rev, err := checksum.JSON(normalize(snap))
	if err != nil || rev == s.rev {
		s.mu.Unlock()
		return false, err
	}
	s.restoreLocked(snap)
	ch := Change{Kind: DocumentReloaded, Revision: s.rev}
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook(ch)
	}
	return true, nil
}

// Save writes the whole snapshot.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider.Save(ctx, s.snapshotLocked())
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Revision returns the digest of the current state.
func (s *Store) Revision() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// Field returns a copy of one field.
func (s *Store) Field(id int64) (models.Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields.Get(id)
}

// AddField appends an empty text field.
func (s *Store) AddField(ctx context.Context) (models.Field, error) {
	return s.AddFieldWith(ctx, FieldUpdate{})
}

// AddFieldWith appends a field with u applied, saved as one mutation.
func (s *Store) AddFieldWith(ctx context.Context, u FieldUpdate) (models.Field, error) {
	if u.Type != nil && !u.Type.Valid() {
		return models.Field{}, fmt.Errorf("%w: %q", apperr.ErrInvalidType, *u.Type)
	}
	var f models.Field
	err := s.mutate(ctx, FieldAdded, func() (int64, bool, error) {
		f = s.fields.Add()
		f = s.applyLocked(f.ID, u)
		return f.ID, true, nil
	})
	return f, err
}

// RemoveField deletes a field. It reports whether the field existed.
func (s *Store) RemoveField(ctx context.Context, id int64) (bool, error) {
	return s.apply(ctx, FieldRemoved, id, func() bool { return s.fields.Remove(id) })
}

// SetLabel replaces the label of a field.
func (s *Store) SetLabel(ctx context.Context, id int64, label string) (bool, error) {
	return s.apply(ctx, FieldUpdated, id, func() bool { return s.fields.SetLabel(id, label) })
}

// SetType changes the type of a field, coercing its value.
func (s *Store) SetType(ctx context.Context, id int64, t models.FieldType) (bool, error) {
	if !t.Valid() {
		return false, fmt.Errorf("%w: %q", apperr.ErrInvalidType, t)
	}
	return s.apply(ctx, FieldUpdated, id, func() bool { return s.fields.SetType(id, t) })
}

// SetValue replaces the value of a field, coerced to its type.
func (s *Store) SetValue(ctx context.Context, id int64, v models.Value) (bool, error) {
	return s.apply(ctx, FieldUpdated, id, func() bool { return s.fields.SetValue(id, v) })
}

// UpdateField applies u to one field as a single mutation. It returns
// apperr.ErrNotFound when the field does not exist.
func (s *Store) UpdateField(ctx context.Context, id int64, u FieldUpdate) (models.Field, error) {
	if u.Type != nil && !u.Type.Valid() {
		return models.Field{}, fmt.Errorf("%w: %q", apperr.ErrInvalidType, *u.Type)
	}
	var f models.Field
	err := s.mutate(ctx, FieldUpdated, func() (int64, bool, error) {
		if _, ok := s.fields.Get(id); !ok {
			return id, false, apperr.ErrNotFound
		}
		f = s.applyLocked(id, u)
		return id, true, nil
	})
	return f, err
}

func (s *Store) applyLocked(id int64, u FieldUpdate) models.Field {
	if u.Label != nil {
		s.fields.SetLabel(id, *u.Label)
	}
	if u.Type != nil {
		s.fields.SetType(id, *u.Type)
	}
	if u.Value != nil {
		s.fields.SetValue(id, *u.Value)
	}
	f, _ := s.fields.Get(id)
	return f
}

// AddListItem appends an empty item to a list field.
func (s *Store) AddListItem(ctx context.Context, id int64) (bool, error) {
	return s.apply(ctx, FieldUpdated, id, func() bool { return s.fields.ListItemAdd(id) })
}

// SetListItem replaces one item of a list field.
func (s *Store) SetListItem(ctx context.Context, id int64, index int, text string) (bool, error) {
	return s.apply(ctx, FieldUpdated, id, func() bool { return s.fields.ListItemSet(id, index, text) })
}

// RemoveListItem deletes one item of a list field.
func (s *Store) RemoveListItem(ctx context.Context, id int64, index int) (bool, error) {
	return s.apply(ctx, FieldUpdated, id, func() bool { return s.fields.ListItemRemove(id, index) })
}

// MoveField reinserts source at the position of target.
func (s *Store) MoveField(ctx context.Context, source, target int64) (bool, error) {
	return s.apply(ctx, FieldMoved, source, func() bool { return s.fields.Move(source, target) })
}

// SetBody replaces the markdown body.
func (s *Store) SetBody(ctx context.Context, body string) error {
	_, err := s.apply(ctx, BodyUpdated, 0, func() bool {
		if s.body == body {
			return false
		}
		s.body = body
		return true
	})
	return err
}

// SetFieldsHidden sets the visibility flag of the properties panel.
func (s *Store) SetFieldsHidden(ctx context.Context, hidden bool) error {
	_, err := s.apply(ctx, VisibilityUpdated, 0, func() bool {
		if s.hidden == hidden {
			return false
		}
		s.hidden = hidden
		return true
	})
	return err
}

// ToggleFieldsHidden flips the visibility flag and returns the new value.
func (s *Store) ToggleFieldsHidden(ctx context.Context) (bool, error) {
	var hidden bool
	_, err := s.apply(ctx, VisibilityUpdated, 0, func() bool {
		s.hidden = !s.hidden
		hidden = s.hidden
		return true
	})
	return hidden, err
}

// Import replaces all fields with the entries of an exported field list.
// On any error the current fields are left untouched.
func (s *Store) Import(ctx context.Context, data []byte) (int, error) {
	imported, err := serializer.Import(data)
	if err != nil {
		return 0, err
	}
	err = s.mutate(ctx, DocumentImported, func() (int64, bool, error) {
		s.fields.Replace(imported)
		return 0, true, nil
	})
	if err != nil {
		return 0, err
	}
	return len(imported), nil
}

func (s *Store) apply(ctx context.Context, kind ChangeKind, id int64, fn func() bool) (bool, error) {
	var changed bool
	err := s.mutate(ctx, kind, func() (int64, bool, error) {
		changed = fn()
		return id, changed, nil
	})
	return changed, err
}

// mutate runs fn under the lock, persists the result and fires the hook.
// When persisting fails the previous state is restored.
func (s *Store) mutate(ctx context.Context, kind ChangeKind, fn func() (int64, bool, error)) error {
	s.mu.Lock()
	if want, ok := ifMatchFrom(ctx); ok && want != s.rev {
		s.mu.Unlock()
		return fmt.Errorf("%w: revision %s is stale", apperr.ErrConflict, want)
	}

	prev := s.snapshotLocked()
	id, changed, err := fn()
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}

	if err := s.provider.Save(ctx, s.snapshotLocked()); err != nil {
		s.restoreLocked(prev)
		s.mu.Unlock()
		s.logger.Error("persist document", "kind", kind, "error", err)
		return fmt.Errorf("document: save: %w", err)
	}
	s.rev = s.revisionLocked()
	ch := Change{Kind: kind, FieldID: id, Revision: s.rev}
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook(ch)
	}
	return nil
}

func (s *Store) snapshotLocked() *models.Snapshot {
	return &models.Snapshot{
		Version:      models.SnapshotVersion,
		Fields:       s.fields.Fields(),
		Body:         s.body,
		FieldsHidden: s.hidden,
	}
}

func (s *Store) restoreLocked(snap *models.Snapshot) {
	s.fields.Restore(snap.Fields)
	s.body = snap.Body
	s.hidden = snap.FieldsHidden
	s.rev = s.revisionLocked()
}

func (s *Store) revisionLocked() string {
	rev, err := checksum.JSON(s.snapshotLocked())
	if err != nil {
		s.logger.Error("compute revision", "error", err)
	}
	return rev
}

// normalize returns snap in the shape the store would hold after restoring
// it, so revisions of stored and in-memory state compare equal.
func normalize(snap *models.Snapshot) *models.Snapshot {
	c := fields.New()
	c.Restore(snap.Fields)
	return &models.Snapshot{
		Version:      models.SnapshotVersion,
		Fields:       c.Fields(),
		Body:         snap.Body,
		FieldsHidden: snap.FieldsHidden,
	}
}

type ifMatchKey struct{}

// WithIfMatch returns a context that makes the next mutation fail with
// apperr.ErrConflict unless the store is still at revision rev.
func WithIfMatch(ctx context.Context, rev string) context.Context {
	if rev == "" {
		return ctx
	}
	return context.WithValue(ctx, ifMatchKey{}, rev)
}

func ifMatchFrom(ctx context.Context) (string, bool) {
	rev, ok := ctx.Value(ifMatchKey{}).(string)
	return rev, ok
}
