package vector

import (
	"math"
	"path/filepath"
	"testing"
)

func TestFlatIndex_AppendSearch(t *testing.T) {
	idx, err := NewFlatIndex(3)
	if err != nil {
		t.Fatal(err)
	}

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	for i, v := range vecs {
		slot, err := idx.Append(v)
		if err != nil {
			t.Fatal(err)
		}
		if slot != i {
			t.Errorf("slot = %d, want %d", slot, i)
		}
	}
	if idx.Size() != 3 || idx.LiveSize() != 3 {
		t.Errorf("Size=%d LiveSize=%d", idx.Size(), idx.LiveSize())
	}

	neighbors, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(neighbors))
	}
	if neighbors[0].Slot != 0 {
		t.Errorf("nearest slot = %d, want 0", neighbors[0].Slot)
	}
	if neighbors[0].Distance != 0 {
		t.Errorf("nearest distance = %f, want 0", neighbors[0].Distance)
	}
	if neighbors[1].Slot != 1 {
		t.Errorf("second slot = %d, want 1", neighbors[1].Slot)
	}
}

func TestFlatIndex_dimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	if _, err := idx.Append([]float32{1, 2, 3}); err == nil {
		t.Error("Append should reject wrong dimension")
	}
	if _, err := idx.Search([]float32{1}, 1); err == nil {
		t.Error("Search should reject wrong dimension")
	}
}

func TestFlatIndex_tombstoneExcludedFromSearch(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	_, _ = idx.Append([]float32{1, 0})
	_, _ = idx.Append([]float32{0, 1})

	// Slot 0 is the exact nearest neighbor; tombstoning must hide it.
	if err := idx.Tombstone(0); err != nil {
		t.Fatal(err)
	}
	neighbors, err := idx.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 1 || neighbors[0].Slot != 1 {
		t.Errorf("neighbors = %+v, want only slot 1", neighbors)
	}
	if idx.Size() != 2 {
		t.Errorf("tombstone must not shrink the table: Size=%d", idx.Size())
	}
	if idx.LiveSize() != 1 || idx.Tombstones() != 1 {
		t.Errorf("LiveSize=%d Tombstones=%d", idx.LiveSize(), idx.Tombstones())
	}
	if idx.IsLive(0) || !idx.IsLive(1) {
		t.Error("IsLive flags wrong")
	}
}

func TestFlatIndex_tombstoneIdempotent(t *testing.T) {
	idx, _ := NewFlatIndex(1)
	_, _ = idx.Append([]float32{1})
	_ = idx.Tombstone(0)
	_ = idx.Tombstone(0)
	if idx.LiveSize() != 0 {
		t.Errorf("LiveSize = %d, want 0", idx.LiveSize())
	}
	if err := idx.Tombstone(5); err == nil {
		t.Error("out-of-range tombstone should error")
	}
}

func TestFlatIndex_replaceKeepsSlot(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	_, _ = idx.Append([]float32{1, 0})
	slot, _ := idx.Append([]float32{0, 1})

	if err := idx.Replace(slot, []float32{0.6, 0.8}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Errorf("replace must not grow the table: Size=%d", idx.Size())
	}
	neighbors, _ := idx.Search([]float32{0.6, 0.8}, 1)
	if neighbors[0].Slot != slot {
		t.Errorf("nearest slot = %d, want %d", neighbors[0].Slot, slot)
	}

	_ = idx.Tombstone(slot)
	if err := idx.Replace(slot, []float32{1, 1}); err == nil {
		t.Error("replacing a tombstoned slot should error")
	}
}

func TestFlatIndex_rebuildCompacts(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	_, _ = idx.Append([]float32{1, 0})
	_, _ = idx.Append([]float32{0, 1})
	_, _ = idx.Append([]float32{1, 1})
	_ = idx.Tombstone(1)

	slots, rows := idx.Rows()
	if len(slots) != 2 || slots[0] != 0 || slots[1] != 2 {
		t.Fatalf("live slots = %v", slots)
	}
	if err := idx.Rebuild(rows); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 || idx.Tombstones() != 0 {
		t.Errorf("after rebuild: Size=%d Tombstones=%d", idx.Size(), idx.Tombstones())
	}
	neighbors, _ := idx.Search([]float32{1, 1}, 1)
	if neighbors[0].Slot != 1 {
		t.Errorf("compacted slot = %d, want 1", neighbors[0].Slot)
	}
}

func TestFlatIndex_saveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipes.index")

	idx, _ := NewFlatIndex(3)
	_, _ = idx.Append([]float32{1, 2, 3})
	_, _ = idx.Append([]float32{4, 5, 6})
	_ = idx.Tombstone(0)
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewFlatIndex(3)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 || loaded.LiveSize() != 1 {
		t.Errorf("loaded Size=%d LiveSize=%d", loaded.Size(), loaded.LiveSize())
	}
	if loaded.IsLive(0) {
		t.Error("tombstone flag should survive the round trip")
	}
	a, _ := idx.Search([]float32{4, 5, 6}, 1)
	b, _ := loaded.Search([]float32{4, 5, 6}, 1)
	if a[0].Slot != b[0].Slot || math.Abs(a[0].Distance-b[0].Distance) > 1e-6 {
		t.Errorf("search differs after reload: %+v vs %+v", a[0], b[0])
	}
}

func TestFlatIndex_loadMissingFile(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	err := idx.Load(filepath.Join(t.TempDir(), "absent.index"))
	if err != ErrNoArtifact {
		t.Errorf("err = %v, want ErrNoArtifact", err)
	}
}

func TestFlatIndex_loadDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")
	idx, _ := NewFlatIndex(2)
	_, _ = idx.Append([]float32{1, 0})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	other, _ := NewFlatIndex(3)
	if err := other.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
