package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "nested", "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	entries := []EmbeddingEntry{
		{Key: "a", Model: "m", Vector: []float32{0.25, -1, 3.5}},
		{Key: "b", Model: "m", Vector: []float32{1}},
	}
	if err := store.PutEmbeddings(ctx, entries); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetEmbeddings(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
	if v := got["a"]; len(v) != 3 || v[0] != 0.25 || v[1] != -1 || v[2] != 3.5 {
		t.Errorf("a = %v", v)
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing key should not be returned")
	}

	n, err := store.CountEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestSQLiteStore_Replace(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	_ = store.PutEmbeddings(ctx, []EmbeddingEntry{{Key: "k", Model: "m", Vector: []float32{1, 2}}})
	_ = store.PutEmbeddings(ctx, []EmbeddingEntry{{Key: "k", Model: "m", Vector: []float32{3, 4, 5}}})
	got, _ := store.GetEmbeddings(ctx, []string{"k"})
	if len(got["k"]) != 3 {
		t.Errorf("replaced vector = %v", got["k"])
	}
}

func TestSQLiteStore_ManyKeys(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	var entries []EmbeddingEntry
	var keys []string
	for i := 0; i < 1200; i++ {
		k := fmt.Sprintf("key-%d", i)
		keys = append(keys, k)
		entries = append(entries, EmbeddingEntry{Key: k, Model: "m", Vector: []float32{float32(i)}})
	}
	if err := store.PutEmbeddings(ctx, entries); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetEmbeddings(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1200 {
		t.Errorf("got %d entries, want 1200", len(got))
	}
	if got["key-1199"][0] != 1199 {
		t.Errorf("key-1199 = %v", got["key-1199"])
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	_ = store.PutEmbeddings(ctx, []EmbeddingEntry{{Key: "old", Model: "m", Vector: []float32{1}}})
	removed, err := store.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if n, _ := store.CountEmbeddings(ctx); n != 0 {
		t.Errorf("count after prune = %d", n)
	}
}

func TestDecodeVector_Corrupt(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}, 1); err == nil {
		t.Error("expected error for short blob")
	}
}
