package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/postwriter/internal/document"
	"github.com/starford/postwriter/internal/sse"
	"github.com/starford/postwriter/internal/storage"
	"github.com/starford/postwriter/internal/testutil"
)

func TestOpenProvider(t *testing.T) {
	dir := t.TempDir()

	p, closeFn, err := OpenProvider(StorageConfig{Driver: storage.DriverFile, Path: filepath.Join(dir, "nested", "data")})
	if err != nil {
		t.Fatalf("file driver: %v", err)
	}
	if _, ok := p.(*storage.FS); !ok {
		t.Errorf("file driver returned %T", p)
	}
	_ = closeFn()

	p, closeFn, err = OpenProvider(StorageConfig{Driver: storage.DriverSQLite, SQLitePath: filepath.Join(dir, "pw.db")})
	if err != nil {
		t.Fatalf("sqlite driver: %v", err)
	}
	if _, ok := p.(*storage.SQLite); !ok {
		t.Errorf("sqlite driver returned %T", p)
	}
	_ = closeFn()

	if _, _, err := OpenProvider(StorageConfig{Driver: "redis"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestHTTPHandler_Health(t *testing.T) {
	store, _ := testutil.TestStore(t)
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	cfg := NewDefaultConfig()
	cfg.Auth = AuthConfig{Mode: AuthModeToken, Token: "tok"}
	h := NewHTTPHandler(cfg, store, broker)

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200 without auth", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/document", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/api/document = %d, want 401", w.Code)
	}
}

func TestHTTPHandler_ChangesReachEventStream(t *testing.T) {
	store, _ := testutil.TestStore(t)
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	store.OnChange(func(c document.Change) {
		broker.PublishDocumentEvent(string(c.Kind), c, bodyChange(c.Kind))
	})
	h := NewHTTPHandler(NewDefaultConfig(), store, broker)

	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	req := httptest.NewRequest(http.MethodPut, "/api/document/body", bytes.NewBufferString(`{"body":"hi"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("put body = %d", w.Code)
	}

	var got []string
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		case <-timeout:
			t.Fatalf("events = %q", got)
		}
	}
	if !strings.Contains(got[0], "event: body.updated") || !strings.Contains(got[1], "event: "+sse.PreviewUpdated) {
		t.Errorf("events = %q", got)
	}
}

func TestHTTPHandler_ReadyReportsClients(t *testing.T) {
	store, _ := testutil.TestStore(t)
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	h := NewHTTPHandler(NewDefaultConfig(), store, broker)

	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var resp struct {
		Status   string `json:"status"`
		Revision string `json:"revision"`
		Clients  int    `json:"clients"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, w.Body.String())
	}
	if resp.Status != "ok" || resp.Clients != 1 || resp.Revision != store.Revision() {
		t.Errorf("ready = %+v", resp)
	}
}

func TestCloseBroker_AnnouncesShutdown(t *testing.T) {
	broker := sse.NewBroker(time.Second)
	ch := broker.Subscribe()
	if broker.ClientCount() != 1 {
		t.Fatal("subscriber not registered")
	}

	closeBroker(broker)

	msg, ok := <-ch
	if !ok || !strings.Contains(string(msg), "event: "+sse.ServerShutdown) {
		t.Fatalf("first message = %q, open = %v", msg, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("stream still open after close")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Error("Run without config should fail")
	}
	if err := RunMCP(context.Background()); err == nil {
		t.Error("RunMCP without config should fail")
	}
}
