package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

// Contents is a decoded segment file.
type Contents struct {
	Header  SegmentHeader
	Records []index.Record
}

// Read loads and verifies a segment file.
func Read(path string) (*Contents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Storage("reading segment file", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, apperrors.Storage("reading segment file", fmt.Errorf("%s: truncated (%d bytes)", path, len(data)))
	}
	header := decodeHeader(data[:HeaderSize])
	if header.Magic != MagicBytes {
		return nil, apperrors.Storage("reading segment file", fmt.Errorf("bad magic bytes %x", header.Magic))
	}
	if header.Version != FormatVersion {
		return nil, apperrors.Storage("reading segment file", fmt.Errorf("unsupported version %d", header.Version))
	}
	if uint64(len(data)) != uint64(HeaderSize)+header.BodySize+uint64(FooterSize) {
		return nil, apperrors.Storage("reading segment file", fmt.Errorf("%s: size does not match header", path))
	}
	body := data[HeaderSize : HeaderSize+int(header.BodySize)]
	footer := data[HeaderSize+int(header.BodySize):]
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(body) {
		return nil, apperrors.Storage("reading segment file", fmt.Errorf("%s: checksum mismatch", path))
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(body, make([]byte, 0, header.RawSize))
	if err != nil {
		return nil, apperrors.Storage("decompressing segment", err)
	}

	var records []index.Record
	d := json.NewDecoder(bytes.NewReader(raw))
	if err := d.Decode(&records); err != nil {
		return nil, apperrors.Storage("parsing segment", err)
	}
	if len(records) != int(header.UnitCount) {
		return nil, apperrors.Storage("parsing segment", fmt.Errorf("expected %d units, found %d", header.UnitCount, len(records)))
	}
	return &Contents{Header: header, Records: records}, nil
}

// List returns the segment files in dir, oldest generation first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Storage("listing segments", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Prune deletes all but the newest keep segment files and any leftover
// temp files.
func Prune(dir string, keep int) error {
	paths, err := List(dir)
	if err != nil {
		return err
	}
	if tmps, _ := filepath.Glob(filepath.Join(dir, "*"+Extension+".tmp")); len(tmps) > 0 {
		for _, p := range tmps {
			os.Remove(p)
		}
	}
	if keep < 1 {
		keep = 1
	}
	if len(paths) <= keep {
		return nil
	}
	for _, p := range paths[:len(paths)-keep] {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return apperrors.Storage("pruning segments", err)
		}
	}
	return nil
}
