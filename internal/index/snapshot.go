package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/questor-ai/questor/internal/domain"
)

// Snapshot layout inside a knowledge directory:
//
//	<dir>/embedding/vectors.bin   header + float32 LE rows
//	<dir>/embedding/passages.json parallel passage metadata
//
// The presence of the embedding/ subdirectory is the signal that
// ingestion has run. Both files are written temp-then-rename so a reader
// never observes one half updated and the other stale.
const (
	SnapshotDir  = "embedding"
	vectorsFile  = "vectors.bin"
	passagesFile = "passages.json"

	snapshotMagic   = uint32(0x51564958) // "QVIX"
	snapshotVersion = uint32(1)
)

type snapshotHeader struct {
	Magic   uint32
	Version uint32
	Dim     uint32
	Count   uint32
}

// SnapshotExists reports whether dir has an embedding snapshot directory.
func SnapshotExists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, SnapshotDir))
	return err == nil && info.IsDir()
}

// RemoveSnapshot deletes the snapshot directory, forcing re-ingestion on
// the next query.
func RemoveSnapshot(dir string) error {
	return os.RemoveAll(filepath.Join(dir, SnapshotDir))
}

// VectorsPath returns the on-disk path of the vectors file. Callers use
// its modtime and size as a cheap change signal.
func VectorsPath(dir string) string {
	return filepath.Join(dir, SnapshotDir, vectorsFile)
}

// Save persists the index under dir atomically. Each file is written to a
// temp path in the same directory and renamed into place.
func (ix *Index) Save(dir string) error {
	snapDir := filepath.Join(dir, SnapshotDir)
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	if err := writeAtomic(filepath.Join(snapDir, vectorsFile), ix.encodeVectors()); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	meta, err := json.Marshal(ix.passages)
	if err != nil {
		return fmt.Errorf("encode passages: %w", err)
	}
	if err := writeAtomic(filepath.Join(snapDir, passagesFile), meta); err != nil {
		return fmt.Errorf("write passages: %w", err)
	}
	return nil
}

// Load reads a snapshot from dir. Either file missing yields
// domain.ErrNotFound (distinct from an empty-but-valid index); files that
// are present but unreadable or inconsistent yield domain.ErrIndexCorrupted.
func Load(dir string) (*Index, error) {
	snapDir := filepath.Join(dir, SnapshotDir)

	vecData, err := os.ReadFile(filepath.Join(snapDir, vectorsFile))
	if err != nil {
		return nil, loadErr("vectors", err)
	}
	metaData, err := os.ReadFile(filepath.Join(snapDir, passagesFile))
	if err != nil {
		return nil, loadErr("passages", err)
	}

	dim, vectors, err := decodeVectors(vecData)
	if err != nil {
		return nil, fmt.Errorf("decode vectors: %w", err)
	}

	var passages []domain.Passage
	if err := json.Unmarshal(metaData, &passages); err != nil {
		return nil, fmt.Errorf("decode passages: %w: %v", domain.ErrIndexCorrupted, err)
	}

	if len(passages) != len(vectors) {
		return nil, fmt.Errorf("%d passages for %d vectors: %w",
			len(passages), len(vectors), domain.ErrIndexCorrupted)
	}

	return &Index{dim: dim, vectors: vectors, passages: passages}, nil
}

func loadErr(half string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("snapshot %s file: %w", half, domain.ErrNotFound)
	}
	return fmt.Errorf("read snapshot %s file: %w: %v", half, domain.ErrIndexCorrupted, err)
}

func (ix *Index) encodeVectors() []byte {
	buf := make([]byte, 16+len(ix.vectors)*ix.dim*4)
	binary.LittleEndian.PutUint32(buf[0:], snapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:], snapshotVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(ix.dim))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(ix.vectors)))

	off := 16
	for _, row := range ix.vectors {
		for _, f := range row {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

func decodeVectors(data []byte) (int, [][]float32, error) {
	if len(data) < 16 {
		return 0, nil, fmt.Errorf("truncated header: %w", domain.ErrIndexCorrupted)
	}
	var h snapshotHeader
	h.Magic = binary.LittleEndian.Uint32(data[0:])
	h.Version = binary.LittleEndian.Uint32(data[4:])
	h.Dim = binary.LittleEndian.Uint32(data[8:])
	h.Count = binary.LittleEndian.Uint32(data[12:])

	if h.Magic != snapshotMagic {
		return 0, nil, fmt.Errorf("bad magic %#x: %w", h.Magic, domain.ErrIndexCorrupted)
	}
	if h.Version != snapshotVersion {
		return 0, nil, fmt.Errorf("unsupported snapshot version %d: %w", h.Version, domain.ErrIndexCorrupted)
	}

	dim, count := int(h.Dim), int(h.Count)
	if dim <= 0 {
		return 0, nil, fmt.Errorf("non-positive dimension %d: %w", dim, domain.ErrIndexCorrupted)
	}
	want := 16 + count*dim*4
	if len(data) != want {
		return 0, nil, fmt.Errorf("snapshot is %d bytes, header implies %d: %w",
			len(data), want, domain.ErrIndexCorrupted)
	}

	vectors := make([][]float32, count)
	off := 16
	for i := range vectors {
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = row
	}
	return dim, vectors, nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
