package vector

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(0)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	texts := []string{"a", "b", "c"}
	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.AddBatch(ctx, texts, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}
	if idx.Dimensions() != 3 {
		t.Errorf("Dimensions=%d", idx.Dimensions())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Text != "a" || results[1].Text != "b" {
		t.Errorf("order = %s, %s; want a, b", results[0].Text, results[1].Text)
	}
	if math.Abs(results[0].Score-1) > 1e-9 {
		t.Errorf("identical vector score = %v, want 1", results[0].Score)
	}
	if results[0].Score < results[1].Score {
		t.Error("scores should be non-increasing")
	}
}

func TestMemoryIndex_TopKLargerThanSize(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	_ = idx.Add(ctx, "x", []float32{1, 0})
	_ = idx.Add(ctx, "y", []float32{0, 1})

	results, err := idx.Search(ctx, []float32{1, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("len=%d, want 2", len(results))
	}
}

func TestMemoryIndex_CosineIgnoresMagnitude(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	_ = idx.Add(ctx, "long", []float32{10, 0})
	_ = idx.Add(ctx, "angled", []float32{1, 1})

	results, err := idx.Search(ctx, []float32{0.5, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Text != "long" {
		t.Errorf("top = %s, want long", results[0].Text)
	}
	if math.Abs(results[0].Score-1) > 1e-9 {
		t.Errorf("score = %v, want 1", results[0].Score)
	}
	if math.Abs(results[1].Score-1/math.Sqrt2) > 1e-6 {
		t.Errorf("score = %v, want %v", results[1].Score, 1/math.Sqrt2)
	}
}

func TestMemoryIndex_DuplicatesKeepInsertionOrder(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	_ = idx.Add(ctx, "other", []float32{0, 1})
	_ = idx.Add(ctx, "dup", []float32{1, 0})
	_ = idx.Add(ctx, "dup", []float32{1, 0})

	results, err := idx.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Text != "dup" || results[1].Text != "dup" {
		t.Fatalf("duplicates should rank first and second, got %s, %s", results[0].Text, results[1].Text)
	}
	if results[0].Position != 1 || results[1].Position != 2 {
		t.Errorf("positions = %d, %d; want 1, 2", results[0].Position, results[1].Position)
	}
}

func TestMemoryIndex_TiesAreStable(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	for _, text := range []string{"p0", "p1", "p2", "p3", "p4", "p5"} {
		if err := idx.Add(ctx, text, []float32{1, 1}); err != nil {
			t.Fatal(err)
		}
	}
	results, err := idx.Search(ctx, []float32{1, 1}, 6)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r.Position != i {
			t.Errorf("result %d has position %d", i, r.Position)
		}
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	if err := idx.Add(ctx, "first", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	err := idx.Add(ctx, "second", []float32{1, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add err = %v, want ErrDimensionMismatch", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d after failed add, want 1", idx.Size())
	}

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search err = %v, want ErrDimensionMismatch", err)
	}
	if idx.Size() != 1 || idx.Dimensions() != 3 {
		t.Errorf("index changed by failed search: size=%d dims=%d", idx.Size(), idx.Dimensions())
	}
}

func TestMemoryIndex_AddBatchIsAtomic(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	err := idx.AddBatch(ctx, []string{"a", "b", "c"}, [][]float32{{1, 0}, {0, 1}, {1}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	if idx.Size() != 0 {
		t.Errorf("Size=%d, want 0", idx.Size())
	}
	if idx.Dimensions() != 0 {
		t.Errorf("Dimensions=%d, want 0 after failed first batch", idx.Dimensions())
	}

	err = idx.AddBatch(ctx, []string{"a"}, [][]float32{{1}, {2}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestMemoryIndex_InvalidArguments(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()

	if err := idx.Add(ctx, "empty", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Add(nil) err = %v", err)
	}
	_ = idx.Add(ctx, "a", []float32{1})
	for _, k := range []int{0, -3} {
		if _, err := idx.Search(ctx, []float32{1}, k); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Search(k=%d) err = %v", k, err)
		}
	}
	if _, err := NewMemoryIndex(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewMemoryIndex(-1) err = %v", err)
	}
}

func TestMemoryIndex_EmptyIndex(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	results, err := idx.Search(context.Background(), []float32{1, 2}, 3)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestMemoryIndex_ZeroVectorRanksLast(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	_ = idx.Add(ctx, "zero", []float32{0, 0})
	_ = idx.Add(ctx, "opposite", []float32{-1, 0})
	_ = idx.Add(ctx, "match", []float32{1, 0})

	results, err := idx.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"match", "opposite", "zero"}
	for i, w := range want {
		if results[i].Text != w {
			t.Errorf("rank %d = %s, want %s", i, results[i].Text, w)
		}
	}
	for _, r := range results {
		if math.IsNaN(r.Score) {
			t.Errorf("%s has NaN score", r.Text)
		}
	}
	if results[2].Score != MinScore {
		t.Errorf("zero vector score = %v, want %v", results[2].Score, MinScore)
	}
}

func TestMemoryIndex_ZeroQuery(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	_ = idx.Add(ctx, "a", []float32{1, 0})
	_ = idx.Add(ctx, "b", []float32{0, 1})

	results, err := idx.Search(ctx, []float32{0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Text != "a" || results[1].Text != "b" {
		t.Errorf("zero query should keep insertion order, got %s, %s", results[0].Text, results[1].Text)
	}
}

func TestMemoryIndex_CopiesVectors(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	vec := []float32{1, 0}
	_ = idx.Add(ctx, "a", vec)
	vec[0], vec[1] = 0, 1

	results, _ := idx.Search(ctx, []float32{1, 0}, 1)
	if math.Abs(results[0].Score-1) > 1e-9 {
		t.Errorf("stored vector was mutated through caller slice, score=%v", results[0].Score)
	}
}

func TestMemoryIndex_ConcurrentAddSearch(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = idx.Add(ctx, "p", []float32{1, float32(j)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := idx.Search(ctx, []float32{1, 0}, 3); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if idx.Size() != 400 {
		t.Errorf("Size=%d, want 400", idx.Size())
	}
}
