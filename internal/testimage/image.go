// Package testimage builds small synthetic FAT32 disk images in memory for
// tests across the module, the way the teacher's own "testing" package
// (_examples/dargueta-disko/testing/images.go) wraps a raw byte slice as a
// seekable stream with bytesextra instead of requiring every test to create
// a real temp file.
package testimage

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// Geometry bundles the handful of boot-sector fields a synthetic image
// needs; everything else in the BPB is left zeroed.
type Geometry struct {
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	FATSize32         uint32
	RootCluster       uint32
	TotalSectors32    uint32
}

// Default returns the geometry the spec's end-to-end scenarios use: an
// 8 MiB image, 512-byte sectors, 2 sectors/cluster, 32 reserved sectors,
// one FAT.
func Default() Geometry {
	const totalSize = 8 * 1024 * 1024
	const sectorSize = 512
	return Geometry{
		SectorSize:        sectorSize,
		SectorsPerCluster: 2,
		ReservedSectors:   32,
		NumFATs:           1,
		FATSize32:         64,
		RootCluster:       2,
		TotalSectors32:    totalSize / sectorSize,
	}
}

// Store is the backing-store interface blockdevice.Device requires,
// restated here so this package does not import blockdevice.
type Store interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
}

// seekerStore adapts bytesextra's io.ReadWriteSeeker to the
// ReaderAt/WriterAt/Sync/Closer shape the rest of fatmod builds on. It is
// not safe for concurrent use, which is fine: every disk image in this
// module is touched by exactly one goroutine at a time.
type seekerStore struct {
	rws io.ReadWriteSeeker
}

func (s *seekerStore) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.rws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.rws, p)
}

func (s *seekerStore) WriteAt(p []byte, off int64) (int, error) {
	if _, err := s.rws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.rws.Write(p)
}

func (s *seekerStore) Sync() error { return nil }
func (s *seekerStore) Close() error {
	if closer, ok := s.rws.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// New builds an empty FAT32 image (boot sector + one all-free FAT + an
// empty root directory cluster) and returns both the backing Store and the
// raw geometry used to build it.
func New(t *testing.T, geo Geometry) (Store, Geometry) {
	t.Helper()

	totalSize := int(geo.TotalSectors32) * int(geo.SectorSize)
	raw := make([]byte, totalSize)

	boot := raw[:geo.SectorSize]
	binary.LittleEndian.PutUint16(boot[11:13], geo.SectorSize)
	boot[13] = geo.SectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:16], geo.ReservedSectors)
	boot[16] = geo.NumFATs
	binary.LittleEndian.PutUint32(boot[32:36], geo.TotalSectors32)
	binary.LittleEndian.PutUint32(boot[36:40], geo.FATSize32)
	binary.LittleEndian.PutUint32(boot[44:48], geo.RootCluster)

	require.LessOrEqual(t, totalSize, len(raw), "synthetic image bigger than backing slice")

	return &seekerStore{rws: bytesextra.NewReadWriteSeeker(raw)}, geo
}

// DataRegionOffset returns the byte offset of the first data-region
// cluster's sector, for tests that need to poke directly at cluster
// contents without going through the Geometry package.
func (g Geometry) DataRegionOffset() int64 {
	fatRegion := int64(g.ReservedSectors) * int64(g.SectorSize)
	fatBytes := int64(g.NumFATs) * int64(g.FATSize32) * int64(g.SectorSize)
	return fatRegion + fatBytes
}

// FATRegionOffset returns the byte offset of the first FAT.
func (g Geometry) FATRegionOffset() int64 {
	return int64(g.ReservedSectors) * int64(g.SectorSize)
}

// ClusterSize returns the size, in bytes, of one cluster.
func (g Geometry) ClusterSize() uint32 {
	return uint32(g.SectorsPerCluster) * uint32(g.SectorSize)
}
