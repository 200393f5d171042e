// Package vector provides a flat vector index with stable slot positions,
// logical deletion, and compaction.
package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrNoArtifact is returned by Load when no index file exists at the path.
var ErrNoArtifact = errors.New("no index artifact")

// Neighbor is a single nearest-neighbor hit.
type Neighbor struct {
	Slot     int
	Distance float64 // squared L2 distance
}

// FlatIndex is a brute-force L2 index over dense rows. A row's position is
// its slot and never moves while the index holds it; deleting and updating
// are logical operations (tombstone bitmap, in-place replace) so slots that
// other structures reference stay valid. Compact rebuilds the table from
// live rows only and is the sole way a slot is ever renumbered.
type FlatIndex struct {
	dimensions int
	rows       [][]float32
	dead       []bool
	liveCount  int
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		rows:       make([][]float32, 0),
		dead:       make([]bool, 0),
	}, nil
}

// Append adds a vector at the next slot and returns that slot.
func (f *FlatIndex) Append(vec []float32) (int, error) {
	if len(vec) != f.dimensions {
		return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row := make([]float32, f.dimensions)
	copy(row, vec)
	f.rows = append(f.rows, row)
	f.dead = append(f.dead, false)
	f.liveCount++
	return len(f.rows) - 1, nil
}

// Replace removes the vector at slot and inserts vec in its place, keeping
// the slot number. The slot must exist and be live.
func (f *FlatIndex) Replace(slot int, vec []float32) error {
	if len(vec) != f.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot < 0 || slot >= len(f.rows) {
		return fmt.Errorf("slot %d out of range (size %d)", slot, len(f.rows))
	}
	if f.dead[slot] {
		return fmt.Errorf("slot %d is tombstoned", slot)
	}
	row := make([]float32, f.dimensions)
	copy(row, vec)
	f.rows[slot] = row
	return nil
}

// Tombstone marks a slot as deleted. The row is physically retained so
// later slots keep their positions; searches skip it.
func (f *FlatIndex) Tombstone(slot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot < 0 || slot >= len(f.rows) {
		return fmt.Errorf("slot %d out of range (size %d)", slot, len(f.rows))
	}
	if !f.dead[slot] {
		f.dead[slot] = true
		f.liveCount--
	}
	return nil
}

// Search returns up to k live slots ordered by ascending squared L2
// distance from query. Tombstoned slots are excluded before ranking.
func (f *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || f.liveCount == 0 {
		return nil, nil
	}
	neighbors := make([]Neighbor, 0, f.liveCount)
	for slot, row := range f.rows {
		if f.dead[slot] {
			continue
		}
		var dist float64
		for j := 0; j < f.dimensions; j++ {
			d := float64(query[j] - row[j])
			dist += d * d
		}
		neighbors = append(neighbors, Neighbor{Slot: slot, Distance: dist})
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Distance < neighbors[j].Distance })
	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Rebuild replaces the index contents with rows, all live. Used by
// compaction; the caller owns remapping slots to whatever the rows
// represent and must hold its own exclusive lock for the full rebuild.
func (f *FlatIndex) Rebuild(rows [][]float32) error {
	for i, vec := range rows {
		if len(vec) != f.dimensions {
			return fmt.Errorf("row %d dimension mismatch: got %d, expected %d", i, len(vec), f.dimensions)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make([][]float32, len(rows))
	f.dead = make([]bool, len(rows))
	for i, vec := range rows {
		row := make([]float32, f.dimensions)
		copy(row, vec)
		f.rows[i] = row
	}
	f.liveCount = len(rows)
	return nil
}

// Rows returns a copy of the live rows in slot order, paired with their
// slots. Used to extract state for compaction and persistence.
func (f *FlatIndex) Rows() (slots []int, rows [][]float32) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for slot, row := range f.rows {
		if f.dead[slot] {
			continue
		}
		out := make([]float32, f.dimensions)
		copy(out, row)
		slots = append(slots, slot)
		rows = append(rows, out)
	}
	return slots, rows
}

// Size returns the total number of slots, tombstoned included.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rows)
}

// LiveSize returns the number of live (non-tombstoned) slots.
func (f *FlatIndex) LiveSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.liveCount
}

// Tombstones returns the number of tombstoned slots.
func (f *FlatIndex) Tombstones() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rows) - f.liveCount
}

// IsLive reports whether slot exists and is not tombstoned.
func (f *FlatIndex) IsLive(slot int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slot >= 0 && slot < len(f.rows) && !f.dead[slot]
}

// Dimensions returns the index dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Snapshot returns a copy of all rows and the tombstone bitmap. The copy is
// what the persistence layer writes, so a snapshot taken inside a mutation's
// critical section always describes a fully applied state.
func (f *FlatIndex) Snapshot() (rows [][]float32, dead []bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rows = make([][]float32, len(f.rows))
	for i, row := range f.rows {
		out := make([]float32, f.dimensions)
		copy(out, row)
		rows[i] = out
	}
	dead = make([]bool, len(f.dead))
	copy(dead, f.dead)
	return rows, dead
}

// Restore replaces the index contents with rows and the given tombstone
// bitmap. Used when loading a persisted artifact.
func (f *FlatIndex) Restore(rows [][]float32, dead []bool) error {
	if len(rows) != len(dead) {
		return fmt.Errorf("rows and tombstone bitmap length mismatch: %d vs %d", len(rows), len(dead))
	}
	for i, vec := range rows {
		if len(vec) != f.dimensions {
			return fmt.Errorf("row %d dimension mismatch: got %d, expected %d", i, len(vec), f.dimensions)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make([][]float32, len(rows))
	for i, vec := range rows {
		row := make([]float32, f.dimensions)
		copy(row, vec)
		f.rows[i] = row
	}
	f.dead = make([]bool, len(dead))
	copy(f.dead, dead)
	f.liveCount = 0
	for _, d := range f.dead {
		if !d {
			f.liveCount++
		}
	}
	return nil
}

// Save persists the index to path. See WriteFile for the format.
func (f *FlatIndex) Save(path string) error {
	rows, dead := f.Snapshot()
	return WriteFile(path, f.dimensions, rows, dead)
}

// Load reads the index artifact at path and replaces the in-memory
// contents. Dimensions must match. Returns ErrNoArtifact when no file
// exists so the caller can decide to start fresh.
func (f *FlatIndex) Load(path string) error {
	rows, dead, err := ReadFile(path, f.dimensions)
	if err != nil {
		return err
	}
	return f.Restore(rows, dead)
}

// WriteFile persists rows and the tombstone bitmap to path. Format:
// dimension (4), n (4), then per slot: dead flag (1), vector
// (dimension*4 bytes), little-endian. The file is written to a temp path
// and renamed so a crash never leaves a partial artifact behind.
func WriteFile(path string, dimensions int, rows [][]float32, dead []bool) error {
	if path == "" {
		return nil
	}
	if len(rows) != len(dead) {
		return fmt.Errorf("rows and tombstone bitmap length mismatch: %d vs %d", len(rows), len(dead))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := writeRows(file, dimensions, rows, dead); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

func writeRows(file *os.File, dimensions int, rows [][]float32, dead []bool) error {
	if err := binary.Write(file, binary.LittleEndian, uint32(dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(len(rows))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, row := range rows {
		if len(row) != dimensions {
			return fmt.Errorf("row %d dimension mismatch: got %d, expected %d", i, len(row), dimensions)
		}
		var deadFlag uint8
		if dead[i] {
			deadFlag = 1
		}
		if err := binary.Write(file, binary.LittleEndian, deadFlag); err != nil {
			return fmt.Errorf("write tombstone flag: %w", err)
		}
		if _, err := file.Write(float32SliceToBytes(row)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// ReadFile reads an index artifact written by WriteFile. Dimensions must
// match. Returns ErrNoArtifact when no file exists at path.
func ReadFile(path string, dimensions int) (rows [][]float32, dead []bool, err error) {
	if path == "" {
		return nil, nil, ErrNoArtifact
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNoArtifact
		}
		return nil, nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	var dim, n uint32
	if err := binary.Read(file, binary.LittleEndian, &dim); err != nil {
		return nil, nil, fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != dimensions {
		return nil, nil, fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, dimensions)
	}
	if err := binary.Read(file, binary.LittleEndian, &n); err != nil {
		return nil, nil, fmt.Errorf("read count: %w", err)
	}

	rows = make([][]float32, 0, n)
	dead = make([]bool, 0, n)
	buf := make([]byte, dimensions*4)
	for i := uint32(0); i < n; i++ {
		var deadFlag uint8
		if err := binary.Read(file, binary.LittleEndian, &deadFlag); err != nil {
			return nil, nil, fmt.Errorf("read tombstone flag: %w", err)
		}
		if _, err := io.ReadFull(file, buf); err != nil {
			return nil, nil, fmt.Errorf("read vector: %w", err)
		}
		rows = append(rows, bytesToFloat32Slice(buf))
		dead = append(dead, deadFlag == 1)
	}
	return rows, dead, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
