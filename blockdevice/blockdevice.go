// Package blockdevice implements the durable, sector- and cluster-aligned
// read/write layer fatmod's higher-level components are built on.
//
// It collapses the teacher's two-layer BlockDevice/ClusterStream split
// (_examples/dargueta-disko/drivers/common/{blockdevice,clusterio}.go) into
// a single type, since a fatmod invocation only ever deals with one sector
// size and one cluster geometry for the lifetime of the process.
package blockdevice

import (
	"fmt"
	"io"

	ferrors "github.com/gorkemsolun/FAT32-File-System-Image-Modifier/errors"
)

// Store is the seekable byte-addressable backing store spec.md §1 calls
// for. *os.File satisfies it directly.
type Store interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
}

// Device addresses a Store in units of sectors and, once Configure has been
// called, in units of clusters.
type Device struct {
	store      Store
	sectorSize uint32

	sectorsPerCluster uint32
	dataRegionOffset  int64
	clusterSize       uint32
	configured        bool
}

// New wraps store as a Device with the given sector size. Cluster
// operations are unavailable until Configure is called.
func New(store Store, sectorSize uint32) *Device {
	return &Device{store: store, sectorSize: sectorSize}
}

// Configure records the cluster geometry Geometry derived from the boot
// sector, enabling ReadCluster/WriteCluster.
func (d *Device) Configure(sectorsPerCluster uint32, dataRegionOffset int64) {
	d.sectorsPerCluster = sectorsPerCluster
	d.dataRegionOffset = dataRegionOffset
	d.clusterSize = sectorsPerCluster * d.sectorSize
	d.configured = true
}

// SectorSize returns the configured sector size, in bytes.
func (d *Device) SectorSize() uint32 {
	return d.sectorSize
}

// ClusterSize returns the configured cluster size, in bytes. Zero until
// Configure has been called.
func (d *Device) ClusterSize() uint32 {
	return d.clusterSize
}

// Close releases the underlying backing store.
func (d *Device) Close() error {
	return d.store.Close()
}

// ReadRange reads exactly len(buf) bytes at offset, failing with IOShort on
// a short read.
func (d *Device) ReadRange(offset int64, buf []byte) error {
	n, err := d.store.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return ferrors.IOShort.WrapError(err)
	}
	if n < len(buf) {
		return ferrors.IOShort.WithMessage(
			fmt.Sprintf("wanted %d bytes at offset %d, got %d", len(buf), offset, n))
	}
	return nil
}

// WriteRange writes buf at offset and flushes it to stable storage before
// returning.
func (d *Device) WriteRange(offset int64, buf []byte) error {
	n, err := d.store.WriteAt(buf, offset)
	if err != nil {
		return ferrors.IOWrite.WrapError(err)
	}
	if n < len(buf) {
		return ferrors.IOWrite.WithMessage(
			fmt.Sprintf("wanted to write %d bytes at offset %d, wrote %d", len(buf), offset, n))
	}
	return d.sync()
}

// ReadSector reads exactly SectorSize bytes at sector n.
func (d *Device) ReadSector(n uint32) ([]byte, error) {
	buf := make([]byte, d.sectorSize)
	if err := d.ReadRange(int64(n)*int64(d.sectorSize), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteSector writes buf, which must be exactly SectorSize bytes, to
// sector n.
func (d *Device) WriteSector(n uint32, buf []byte) error {
	if uint32(len(buf)) != d.sectorSize {
		return ferrors.IOWrite.WithMessage(
			fmt.Sprintf("sector write must be exactly %d bytes, got %d", d.sectorSize, len(buf)))
	}
	return d.WriteRange(int64(n)*int64(d.sectorSize), buf)
}

// ReadCluster reads a full cluster's worth of bytes starting at the data
// region offset for cluster c. Defined only for c >= 2.
func (d *Device) ReadCluster(c uint32) ([]byte, error) {
	offset, err := d.clusterOffset(c)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, d.clusterSize)
	if err := d.ReadRange(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteCluster writes buf, which must be exactly ClusterSize bytes, to
// cluster c.
func (d *Device) WriteCluster(c uint32, buf []byte) error {
	offset, err := d.clusterOffset(c)
	if err != nil {
		return err
	}
	if uint32(len(buf)) != d.clusterSize {
		return ferrors.IOWrite.WithMessage(
			fmt.Sprintf("cluster write must be exactly %d bytes, got %d", d.clusterSize, len(buf)))
	}
	return d.WriteRange(offset, buf)
}

func (d *Device) clusterOffset(c uint32) (int64, error) {
	if !d.configured {
		return 0, ferrors.IOWrite.WithMessage("device cluster geometry not configured")
	}
	if c < 2 {
		return 0, ferrors.IOWrite.WithMessage(fmt.Sprintf("cluster %d is out of range, must be >= 2", c))
	}
	return d.dataRegionOffset + int64(c-2)*int64(d.clusterSize), nil
}

func (d *Device) sync() error {
	if err := d.store.Sync(); err != nil {
		return ferrors.IOWrite.WrapError(err)
	}
	return nil
}
