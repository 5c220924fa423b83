package document_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/postwriter/internal/apperr"
	"github.com/starford/postwriter/internal/document"
	"github.com/starford/postwriter/internal/models"
	"github.com/starford/postwriter/internal/storage"
	"github.com/starford/postwriter/internal/testutil"
)

func labels(snap *models.Snapshot) []string {
	out := make([]string, len(snap.Fields))
	for i, f := range snap.Fields {
		out[i] = f.Label
	}
	return out
}

func addLabelled(t *testing.T, s *document.Store, names ...string) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, len(names))
	for i, n := range names {
		f, err := s.AddField(ctx)
		if err != nil {
			t.Fatalf("AddField: %v", err)
		}
		if _, err := s.SetLabel(ctx, f.ID, n); err != nil {
			t.Fatalf("SetLabel: %v", err)
		}
		ids[i] = f.ID
	}
	return ids
}

func TestStore_PersistsEveryMutation(t *testing.T) {
	s, fs := testutil.TestStore(t)
	ctx := context.Background()

	ids := addLabelled(t, s, "title", "tags")
	if _, err := s.SetType(ctx, ids[1], models.TypeList); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddListItem(ctx, ids[1]); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetListItem(ctx, ids[1], 0, "go"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBody(ctx, "# Hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ToggleFieldsHidden(ctx); err != nil {
		t.Fatal(err)
	}

	// A second store over the same directory sees the same state.
	again := document.New(fs, testutil.Logger())
	if err := again.Load(ctx); err != nil {
		t.Fatal(err)
	}
	snap := again.Snapshot()
	if got := labels(snap); len(got) != 2 || got[0] != "title" || got[1] != "tags" {
		t.Errorf("labels = %v", got)
	}
	if items := snap.Fields[1].Value.Items(); len(items) != 1 || items[0] != "go" {
		t.Errorf("items = %v", items)
	}
	if snap.Body != "# Hi" || !snap.FieldsHidden {
		t.Errorf("snapshot = %+v", snap)
	}
	if again.Revision() != s.Revision() {
		t.Error("revision differs after reload")
	}

	// New ids continue after the restored ones.
	f, _ := again.AddField(ctx)
	if f.ID <= ids[1] {
		t.Errorf("new id %d reuses a persisted id", f.ID)
	}
}

func TestStore_PersistsOverSQLite(t *testing.T) {
	db := testutil.TestDB(t)
	s := document.New(db, testutil.Logger())
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	ids := addLabelled(t, s, "A", "B", "C")
	if _, err := s.MoveField(ctx, ids[2], ids[0]); err != nil {
		t.Fatal(err)
	}

	again := document.New(db, testutil.Logger())
	if err := again.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := labels(again.Snapshot()); len(got) != 3 || got[0] != "C" || got[1] != "A" || got[2] != "B" {
		t.Errorf("labels = %v", got)
	}
	if again.Revision() != s.Revision() {
		t.Error("revision differs after reload")
	}
}

func TestStore_MoveScenario(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ids := addLabelled(t, s, "A", "B", "C")

	moved, err := s.MoveField(context.Background(), ids[0], ids[2])
	if err != nil || !moved {
		t.Fatalf("MoveField = %v, %v", moved, err)
	}
	snap := s.Snapshot()
	want := []string{"B", "C", "A"}
	for i, f := range snap.Fields {
		if f.Label != want[i] || f.Order != i {
			t.Errorf("field %d = %s/%d, want %s/%d", i, f.Label, f.Order, want[i], i)
		}
	}
}

func TestStore_NoOpsDoNotChangeRevision(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ctx := context.Background()
	ids := addLabelled(t, s, "A")
	rev := s.Revision()

	if ok, _ := s.MoveField(ctx, ids[0], ids[0]); ok {
		t.Error("self move reported a change")
	}
	if ok, _ := s.RemoveField(ctx, 999); ok {
		t.Error("removing an absent id reported a change")
	}
	if ok, _ := s.AddListItem(ctx, ids[0]); ok {
		t.Error("list item added to a text field")
	}
	_ = s.SetBody(ctx, "")
	_ = s.SetFieldsHidden(ctx, false)
	if s.Revision() != rev {
		t.Error("revision changed after no-ops")
	}
}

func TestStore_SetTypeCoercesValue(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ctx := context.Background()
	f, _ := s.AddField(ctx)
	_, _ = s.SetValue(ctx, f.ID, models.Scalar("true"))
	_, _ = s.SetType(ctx, f.ID, models.TypeBoolean)

	got, _ := s.Field(f.ID)
	if !got.Value.IsBool() || !got.Value.Bool() {
		t.Errorf("value = %v, want boolean true", got.Value)
	}

	if _, err := s.SetType(ctx, f.ID, "colour"); !errors.Is(err, apperr.ErrInvalidType) {
		t.Errorf("SetType(colour) = %v, want ErrInvalidType", err)
	}
}

func TestStore_UpdateField(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ctx := context.Background()
	f, _ := s.AddField(ctx)

	label := "draft"
	typ := models.TypeBoolean
	val := models.Scalar("false")
	got, err := s.UpdateField(ctx, f.ID, document.FieldUpdate{Label: &label, Type: &typ, Value: &val})
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "draft" || got.Type != models.TypeBoolean || !got.Value.IsBool() || got.Value.Bool() {
		t.Errorf("field = %+v", got)
	}

	if _, err := s.UpdateField(ctx, 999, document.FieldUpdate{Label: &label}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("UpdateField(999) = %v, want ErrNotFound", err)
	}
}

func TestStore_AddFieldWith(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ctx := context.Background()
	var changes int
	s.OnChange(func(document.Change) { changes++ })

	label := "draft"
	typ := models.TypeBoolean
	val := models.Scalar("true")
	f, err := s.AddFieldWith(ctx, document.FieldUpdate{Label: &label, Type: &typ, Value: &val})
	if err != nil {
		t.Fatal(err)
	}
	if f.Label != "draft" || !f.Value.IsBool() || !f.Value.Bool() {
		t.Errorf("field = %+v", f)
	}
	if changes != 1 {
		t.Errorf("changes = %d, want 1", changes)
	}

	bad := models.FieldType("colour")
	if _, err := s.AddFieldWith(ctx, document.FieldUpdate{Type: &bad}); !errors.Is(err, apperr.ErrInvalidType) {
		t.Errorf("AddFieldWith(colour) = %v, want ErrInvalidType", err)
	}
	if len(s.Snapshot().Fields) != 1 {
		t.Error("invalid add left a field behind")
	}
}

func TestStore_ImportFailureLeavesState(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ctx := context.Background()
	addLabelled(t, s, "keep")
	rev := s.Revision()

	if _, err := s.Import(ctx, []byte(`{"notFields": []}`)); !errors.Is(err, apperr.ErrImportShape) {
		t.Errorf("Import shape = %v", err)
	}
	if _, err := s.Import(ctx, []byte("{not valid")); !errors.Is(err, apperr.ErrMalformedImport) {
		t.Errorf("Import malformed = %v", err)
	}
	if s.Revision() != rev {
		t.Error("failed import changed state")
	}
	if got := labels(s.Snapshot()); len(got) != 1 || got[0] != "keep" {
		t.Errorf("labels = %v", got)
	}
}

func TestStore_ImportReplacesFields(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ctx := context.Background()
	old := addLabelled(t, s, "old")

	n, err := s.Import(ctx, []byte(`yamlFields:
  - {label: b, order: 1}
  - {label: a, order: 0, type: number, value: 3}
`))
	if err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	snap := s.Snapshot()
	if got := labels(snap); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("labels = %v", got)
	}
	for _, f := range snap.Fields {
		if f.ID == old[0] {
			t.Errorf("imported field reused id %d", f.ID)
		}
	}
}

func TestStore_IfMatch(t *testing.T) {
	s, _ := testutil.TestStore(t)
	rev := s.Revision()
	ctx := document.WithIfMatch(context.Background(), rev)

	if _, err := s.AddField(ctx); err != nil {
		t.Fatalf("AddField with current revision: %v", err)
	}
	// rev is now stale.
	if _, err := s.AddField(ctx); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("AddField with stale revision = %v, want ErrConflict", err)
	}
	if len(s.Snapshot().Fields) != 1 {
		t.Error("conflicting mutation was applied")
	}
}

func TestStore_OnChange(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		kinds []document.ChangeKind
	)
	s.OnChange(func(c document.Change) {
		mu.Lock()
		kinds = append(kinds, c.Kind)
		mu.Unlock()
		if c.Revision == "" {
			t.Error("change without revision")
		}
	})

	f, _ := s.AddField(ctx)
	_, _ = s.SetLabel(ctx, f.ID, "x")
	_ = s.SetBody(ctx, "b")
	_, _ = s.RemoveField(ctx, f.ID)
	_, _ = s.RemoveField(ctx, f.ID) // no-op, no event

	mu.Lock()
	defer mu.Unlock()
	want := []document.ChangeKind{document.FieldAdded, document.FieldUpdated, document.BodyUpdated, document.FieldRemoved}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestStore_Reload(t *testing.T) {
	s, fs := testutil.TestStore(t)
	ctx := context.Background()
	addLabelled(t, s, "A")

	// Own writes read back unchanged.
	if changed, err := s.Reload(ctx); err != nil || changed {
		t.Errorf("Reload after own write = %v, %v", changed, err)
	}

	other := document.New(fs, testutil.Logger())
	_ = other.Load(ctx)
	_ = other.SetBody(ctx, "edited elsewhere")

	var got document.ChangeKind
	s.OnChange(func(c document.Change) { got = c.Kind })
	changed, err := s.Reload(ctx)
	if err != nil || !changed {
		t.Fatalf("Reload = %v, %v", changed, err)
	}
	if s.Snapshot().Body != "edited elsewhere" || got != document.DocumentReloaded {
		t.Errorf("body = %q, change = %s", s.Snapshot().Body, got)
	}
}

// gatedProvider blocks the first Load after it has read the snapshot until
// release is closed.
type gatedProvider struct {
	storage.Provider
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Load(ctx context.Context) (*models.Snapshot, error) {
	snap, err := p.Provider.Load(ctx)
	p.once.Do(func() {
		close(p.loaded)
		<-p.release
	})
	return snap, err
}

func TestStore_ReloadKeepsConcurrentWrite(t *testing.T) {
	_, fs := testutil.TestStore(t)
	gp := &gatedProvider{Provider: fs, loaded: make(chan struct{}), release: make(chan struct{})}
	s := document.New(gp, testutil.Logger())
	ctx := context.Background()
	if err := s.SetBody(ctx, "v1"); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan struct{})
	go func() {
		defer close(reloaded)
		if _, err := s.Reload(ctx); err != nil {
			t.Errorf("Reload: %v", err)
		}
	}()
	<-gp.loaded

	added := make(chan int64, 1)
	go func() {
		f, err := s.AddField(ctx)
		if err != nil {
			t.Errorf("AddField: %v", err)
		}
		added <- f.ID
	}()
	time.Sleep(50 * time.Millisecond)
	close(gp.release)
	<-reloaded
	id := <-added

	if err := s.SetBody(ctx, "v2"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Field(id); !ok {
		t.Fatalf("field %d lost in memory", id)
	}
	again := document.New(fs, testutil.Logger())
	if err := again.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if snap := again.Snapshot(); len(snap.Fields) != 1 || snap.Body != "v2" {
		t.Errorf("stored snapshot = %+v", snap)
	}
}

type failingProvider struct{ fail bool }

func (p *failingProvider) Load(context.Context) (*models.Snapshot, error) {
	return nil, apperr.ErrNotFound
}

func (p *failingProvider) Save(context.Context, *models.Snapshot) error {
	if p.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestStore_SaveFailureRollsBack(t *testing.T) {
	p := &failingProvider{}
	s := document.New(p, testutil.Logger())
	ctx := context.Background()
	_ = s.Load(ctx)
	f, _ := s.AddField(ctx)
	rev := s.Revision()

	p.fail = true
	if _, err := s.RemoveField(ctx, f.ID); err == nil {
		t.Fatal("expected save error")
	}
	if _, ok := s.Field(f.ID); !ok {
		t.Error("field removed despite failed save")
	}
	if s.Revision() != rev {
		t.Error("revision changed despite failed save")
	}
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s, _ := testutil.TestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddField(ctx)
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if len(snap.Fields) != 20 {
		t.Fatalf("len = %d, want 20", len(snap.Fields))
	}
	seen := map[int64]bool{}
	for i, f := range snap.Fields {
		if f.Order != i || seen[f.ID] {
			t.Errorf("field %d: order %d id %d", i, f.Order, f.ID)
		}
		seen[f.ID] = true
	}
}
