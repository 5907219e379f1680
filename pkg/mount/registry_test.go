package mount

import (
	"context"
	"slices"
	"testing"
)

func TestRegistryMount(t *testing.T) {
	e := newEnv(t)
	r := NewRegistry()

	if err := r.Mount("avatar", Options{Uploader: e.factory()}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if err := r.Mount("gallery", Options{Uploader: e.factory(), Multiple: true}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if err := r.Mount("avatar", Options{Uploader: e.factory()}); err == nil {
		t.Error("duplicate mount declaration accepted")
	}
	if err := r.Mount("broken", Options{}); err == nil {
		t.Error("mount without uploader factory accepted")
	}

	attrs := r.Attributes()
	slices.Sort(attrs)
	if !slices.Equal(attrs, []string{"avatar", "gallery"}) {
		t.Errorf("Attributes = %v", attrs)
	}
}

func TestRegistryMemoization(t *testing.T) {
	e := newEnv(t)
	r := NewRegistry()
	if err := r.Mount("avatar", Options{Uploader: e.factory()}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	rec := e.backend.NewRecord("r1")
	m1, err := r.Mounter(rec, "avatar")
	if err != nil {
		t.Fatalf("Mounter failed: %v", err)
	}
	m2, err := r.Mounter(rec, "avatar")
	if err != nil {
		t.Fatalf("Mounter failed: %v", err)
	}
	if m1 != m2 {
		t.Error("mounter not memoized per (record, attribute)")
	}

	other := e.backend.NewRecord("r2")
	m3, _ := r.Mounter(other, "avatar")
	if m3 == m1 {
		t.Error("distinct records share a mounter")
	}

	r.Release(rec)
	m4, _ := r.Mounter(rec, "avatar")
	if m4 == m1 {
		t.Error("released mounter still memoized")
	}

	if _, err := r.Mounter(rec, "missing"); err == nil {
		t.Error("undeclared attribute accepted")
	}
}

func TestRegistryFrozenRecordNotMemoized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := NewRegistry()
	if err := r.Mount("avatar", Options{Uploader: e.factory()}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	rec := e.backend.NewRecord("r1")
	rec.WriteColumn("avatar", []string{"abc-file.png"})
	e.backend.Save(rec)

	frozen := e.backend.Load("r1")
	frozen.Freeze()

	m1, err := r.Mounter(frozen, "avatar")
	if err != nil {
		t.Fatalf("Mounter failed: %v", err)
	}
	m2, _ := r.Mounter(frozen, "avatar")
	if m1 == m2 {
		t.Error("frozen record's mounter was memoized")
	}

	// Reads still work against the persisted column.
	if present, err := m1.IsPresent(ctx); err != nil || !present {
		t.Errorf("frozen read: present=%v err=%v", present, err)
	}
}

func TestAttachmentAccessors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := NewRegistry()
	if err := r.Mount("avatar", Options{Uploader: e.factory()}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if err := r.Mount("gallery", Options{Uploader: e.factory(), Multiple: true}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	rec := e.backend.NewRecord("r1")

	av, err := r.Attachment(rec, "avatar")
	if err != nil {
		t.Fatalf("Attachment failed: %v", err)
	}
	if err := av.Set(ctx, payload("me.png", "pixels")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	tok, err := av.CacheToken(ctx)
	if err != nil || tok == "" {
		t.Fatalf("CacheToken = %q, %v", tok, err)
	}
	if err := av.Store(ctx); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	id, err := av.Identifier(ctx)
	if err != nil || id == "" {
		t.Fatalf("Identifier = %q, %v", id, err)
	}

	if err := av.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if u, _ := av.Get(ctx); u != nil {
		t.Error("attachment still present after Clear")
	}

	gal, err := r.AttachmentSet(rec, "gallery")
	if err != nil {
		t.Fatalf("AttachmentSet failed: %v", err)
	}
	if err := gal.Set(ctx, payload("a.png", "a"), payload("b.png", "b")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := gal.Store(ctx); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	ids, err := gal.Identifiers(ctx)
	if err != nil || len(ids) != 2 {
		t.Fatalf("Identifiers = %v, %v", ids, err)
	}
}
