package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newArea(t *testing.T) *Area {
	t.Helper()
	a, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestTokenShape(t *testing.T) {
	token := NewToken()
	if !ValidToken(token) {
		t.Errorf("NewToken produced invalid token %q", token)
	}

	for _, bad := range []string{"", "..", "../../etc", "abc", "123-../x"} {
		if ValidToken(bad) {
			t.Errorf("ValidToken(%q) should be false", bad)
		}
	}
}

func TestPutResolveOpen(t *testing.T) {
	a := newArea(t)
	ctx := context.Background()
	token := NewToken()

	entry, err := a.Put(ctx, token, "avatar.png", strings.NewReader("image bytes"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if entry.Filename != "avatar.png" || entry.Size != int64(len("image bytes")) {
		t.Errorf("unexpected entry: %+v", entry)
	}

	resolved, err := a.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Filename != "avatar.png" {
		t.Errorf("resolved filename = %q", resolved.Filename)
	}

	_, r, err := a.Open(ctx, token)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	data, _ := io.ReadAll(r)
	if string(data) != "image bytes" {
		t.Errorf("read %q", data)
	}
}

func TestPutSanitizesFilename(t *testing.T) {
	a := newArea(t)
	token := NewToken()

	entry, err := a.Put(context.Background(), token, "../../evil.sh", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if entry.Filename != "evil.sh" {
		t.Errorf("filename = %q, want sanitized basename", entry.Filename)
	}
	if _, err := os.Stat(filepath.Join(a.Dir(), token, "evil.sh")); err != nil {
		t.Errorf("staged file not inside area: %v", err)
	}
}

func TestResolveMissing(t *testing.T) {
	a := newArea(t)

	_, err := a.Resolve(context.Background(), NewToken())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	a := newArea(t)
	ctx := context.Background()
	token := NewToken()

	_, _ = a.Put(ctx, token, "f.txt", strings.NewReader("x"))
	if err := a.Remove(ctx, token); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := a.Remove(ctx, token); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
}

func TestSweep(t *testing.T) {
	a := newArea(t)
	ctx := context.Background()

	oldToken := fmt.Sprintf("%d-%s", time.Now().Add(-2*time.Hour).Unix(), uuid.NewString())
	freshToken := NewToken()

	_, _ = a.Put(ctx, oldToken, "old.txt", strings.NewReader("x"))
	_, _ = a.Put(ctx, freshToken, "fresh.txt", strings.NewReader("x"))

	removed, err := a.Sweep(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep removed %d entries, want 1", removed)
	}

	if _, err := a.Resolve(ctx, oldToken); !errors.Is(err, ErrNotFound) {
		t.Error("old entry survived sweep")
	}
	if _, err := a.Resolve(ctx, freshToken); err != nil {
		t.Errorf("fresh entry was swept: %v", err)
	}
}

func TestAreaWithIndex(t *testing.T) {
	idx, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	defer func() { _ = idx.Close() }()

	a, err := New(t.TempDir(), idx)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	token := NewToken()

	if _, err := a.Put(ctx, token, "doc.pdf", strings.NewReader("pdf")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, err := idx.Get(token)
	if err != nil {
		t.Fatalf("index Get failed: %v", err)
	}
	if entry.Filename != "doc.pdf" {
		t.Errorf("indexed filename = %q", entry.Filename)
	}

	tokens, err := idx.Tokens()
	if err != nil {
		t.Fatalf("Tokens failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != token {
		t.Errorf("Tokens = %v", tokens)
	}

	if err := a.Remove(ctx, token); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := idx.Get(token); !errors.Is(err, ErrNotFound) {
		t.Error("index entry survived Remove")
	}
}
