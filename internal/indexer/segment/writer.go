// Package segment persists index snapshots as .tmseg files: a fixed binary
// header, a zstd-compressed JSON body holding every live unit, and a
// checksum footer.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

// MagicBytes identifies a valid .tmseg file ("TMSG").
const (
	MagicBytes    uint32 = 0x544D5347
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 16
	Extension            = ".tmseg"
)

// SegmentHeader is the 64-byte header written at the start of every file.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	UnitCount  uint32
	CreatedAt  int64
	Generation uint64
	NextID     uint64
	BodySize   uint64
	RawSize    uint64
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.UnitCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], h.Generation)
	binary.LittleEndian.PutUint64(b[32:40], h.NextID)
	binary.LittleEndian.PutUint64(b[40:48], h.BodySize)
	binary.LittleEndian.PutUint64(b[48:56], h.RawSize)
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		UnitCount:  binary.LittleEndian.Uint32(b[8:12]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[16:24])),
		Generation: binary.LittleEndian.Uint64(b[24:32]),
		NextID:     binary.LittleEndian.Uint64(b[32:40]),
		BodySize:   binary.LittleEndian.Uint64(b[40:48]),
		RawSize:    binary.LittleEndian.Uint64(b[48:56]),
	}
}

// Writer serialises snapshots into new segment files.
type Writer struct {
	dataDir string
	encoder *zstd.Encoder
	now     func() time.Time
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) (*Writer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &Writer{dataDir: dataDir, encoder: enc, now: time.Now}, nil
}

// Write atomically creates a new segment file holding every live unit of
// snap. It writes to a .tmp file first and renames on success.
func (w *Writer) Write(snap *index.Snapshot) (string, error) {
	records := snap.Records()
	raw, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshaling units: %w", err)
	}
	body := w.encoder.EncodeAll(raw, nil)

	created := w.now()
	name := fmt.Sprintf("tm_%020d_%d%s", snap.Generation(), created.UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", apperrors.Storage("creating segment directory", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", apperrors.Storage("creating temp segment file", err)
	}
	defer f.Close()

	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		UnitCount:  uint32(len(records)),
		CreatedAt:  created.Unix(),
		Generation: snap.Generation(),
		NextID:     uint64(snap.NextID()),
		BodySize:   uint64(len(body)),
		RawSize:    uint64(len(raw)),
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(body))
	binary.LittleEndian.PutUint32(footer[4:8], header.UnitCount)
	binary.LittleEndian.PutUint64(footer[8:16], header.BodySize)

	for _, chunk := range [][]byte{header.encode(), body, footer} {
		if _, err := f.Write(chunk); err != nil {
			os.Remove(tmpPath)
			return "", apperrors.Storage("writing segment", err)
		}
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return "", apperrors.Storage("syncing segment file", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", apperrors.Storage("renaming segment file", err)
	}
	return name, nil
}

func (w *Writer) Close() error {
	return w.encoder.Close()
}
