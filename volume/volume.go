// Package volume implements the File Operations orchestration layer:
// list/create/write/read/delete built on top of the Directory and FAT
// Table components.
//
// The acquire-once/release-on-every-exit-path resource shape is grounded
// on the teacher's CommonDriver
// (_examples/dargueta-disko/drivers/common/basedriver/driver.go), scaled
// down from disko's general mountable-filesystem driver to fatmod's
// single-disk-image-per-invocation lifecycle; the read/write orchestration
// itself follows ReadDirFromDirent's "walk the lower layers, assemble the
// result" shape in
// _examples/dargueta-disko/drivers/fat/driverbase.go.
package volume

import (
	"io"
	"os"
	"time"

	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/blockdevice"
	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/directory"
	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/dump"
	ferrors "github.com/gorkemsolun/FAT32-File-System-Image-Modifier/errors"
	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/fat"
	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/geometry"
)

// Volume composes the four lower-level components needed to service one
// command against one disk image.
type Volume struct {
	dev     *blockdevice.Device
	geo     *geometry.Geometry
	table   *fat.Table
	dir     *directory.Directory
	backing *os.File
}

// Open acquires the backing file, parses its boot sector, and wires up the
// Block Device, FAT Table, and Directory components. Non-default geometry
// warnings are written to warn as they're discovered.
//
// Open is the only place fatmod can fail with an exit-1 condition: the
// backing store could not be opened, or the boot sector could not be
// parsed into a valid Geometry.
func Open(path string, warn func(string)) (*Volume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, ferrors.IOOpen.WrapError(err)
	}

	dev := blockdevice.New(f, 512)
	bootSector, err := dev.ReadSector(0)
	if err != nil {
		f.Close()
		return nil, ferrors.InvalidGeometry.WrapError(err)
	}

	geo, err := geometry.Parse(bootSector, warn)
	if err != nil {
		f.Close()
		return nil, err
	}

	dev = blockdevice.New(f, geo.SectorSize)
	dev.Configure(geo.SectorsPerCluster, geo.DataRegionOffset)

	table := fat.New(dev, geo)

	dir, err := directory.Load(dev, geo)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Volume{dev: dev, geo: geo, table: table, dir: dir, backing: f}, nil
}

// Close releases the backing file. Safe to call on every exit path,
// including after an operation has already failed.
func (v *Volume) Close() error {
	return v.dev.Close()
}

// List writes the root directory's listing to w.
func (v *Volume) List(w io.Writer) error {
	return v.dir.List(w)
}

// Create claims a free directory slot for name and writes a fresh, empty
// file entry. No FAT modification is performed.
func (v *Volume) Create(name string) error {
	if _, _, found := v.dir.Find(name); found {
		return ferrors.AlreadyExists
	}

	shortName, err := directory.EncodeName(name)
	if err != nil {
		return err
	}

	slot, found := v.dir.FindFreeSlot()
	if !found {
		return ferrors.DirectoryFull
	}

	entry := directory.NewFileEntry(shortName, time.Now().Local())
	return v.dir.WriteEntry(slot, entry)
}

// Write overwrites length consecutive bytes of name's contents, starting
// at offset, with value. New clusters are allocated on demand and the
// directory entry's size grows if the write extends past the current end
// of file.
func (v *Volume) Write(name string, offset, length int64, value byte) error {
	slot, entry, found := v.dir.Find(name)
	if !found {
		return ferrors.NotFound
	}

	currentSize := int64(entry.FileSize)
	if offset > currentSize {
		return ferrors.InvalidOffset.WithMessage("offset is past the current end of file")
	}

	clusterSize := int64(v.dev.ClusterSize())
	have := clusterCount(currentSize, clusterSize)
	need := clusterCount(offset+length, clusterSize)

	if need > have {
		toAllocate := int(need - have)
		prev := uint32(0)
		if have > 0 {
			chain, err := v.table.WalkChain(entry.FirstCluster())
			if err != nil {
				return err
			}
			prev = chain[len(chain)-1]
		}

		newClusters, err := v.table.AllocateAndLink(prev, toAllocate)
		if err != nil {
			return err
		}
		if prev == 0 && len(newClusters) > 0 {
			entry.SetFirstCluster(newClusters[0])
		}
	}

	now := time.Now().Local()
	if offset+length > currentSize {
		entry.FileSize = uint32(offset + length)
	}
	directory.TouchWrite(&entry, now)
	if err := v.dir.WriteEntry(slot, entry); err != nil {
		return err
	}

	return v.writeBytes(entry.FirstCluster(), offset, length, value)
}

// writeBytes overwrites length bytes starting at byte offset offset of the
// chain rooted at firstCluster with value, crossing cluster boundaries as
// needed and writing each touched cluster back before moving to the next.
func (v *Volume) writeBytes(firstCluster uint32, offset, length int64, value byte) error {
	if length == 0 {
		return nil
	}

	clusterSize := int64(v.dev.ClusterSize())
	chainIndex := uint32(offset / clusterSize)
	intraOffset := offset % clusterSize

	cluster, err := v.clusterAtIndex(firstCluster, chainIndex)
	if err != nil {
		return err
	}

	remaining := length
	for remaining > 0 {
		buf, err := v.dev.ReadCluster(cluster)
		if err != nil {
			return err
		}

		n := clusterSize - intraOffset
		if n > remaining {
			n = remaining
		}
		for i := int64(0); i < n; i++ {
			buf[intraOffset+i] = value
		}

		if err := v.dev.WriteCluster(cluster, buf); err != nil {
			return err
		}

		remaining -= n
		intraOffset = 0
		if remaining > 0 {
			next, ok, err := v.nextCluster(cluster)
			if err != nil {
				return err
			}
			if !ok {
				return ferrors.BadChain.WithMessage("chain ended before the full write length was applied")
			}
			cluster = next
		}
	}

	return nil
}

func (v *Volume) clusterAtIndex(firstCluster uint32, index uint32) (uint32, error) {
	chain := v.table.Chain(firstCluster)
	var cluster uint32
	for i := uint32(0); i <= index; i++ {
		c, ok, err := chain.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ferrors.BadChain.WithMessage("chain shorter than required offset")
		}
		cluster = c
	}
	return cluster, nil
}

func (v *Volume) nextCluster(after uint32) (uint32, bool, error) {
	entry, err := v.table.ReadEntry(after)
	if err != nil {
		return 0, false, err
	}
	if entry.IsEndOfChain() {
		return 0, false, nil
	}
	return entry.Next(), true, nil
}

// ReadMode selects the Read operation's output format.
type ReadMode int

const (
	ReadBinary ReadMode = iota
	ReadASCII
)

// Read walks name's cluster chain and writes its contents to w in the
// requested mode, truncated to the file's recorded size.
func (v *Volume) Read(name string, mode ReadMode, w io.Writer) error {
	_, entry, found := v.dir.Find(name)
	if !found {
		return ferrors.NotFound
	}

	data, err := v.readAll(entry)
	if err != nil {
		return err
	}

	switch mode {
	case ReadBinary:
		return dump.WriteBinary(w, data)
	default:
		return dump.WriteASCII(w, data)
	}
}

func (v *Volume) readAll(entry directory.DirEntry) ([]byte, error) {
	size := int64(entry.FileSize)
	if size == 0 || entry.FirstCluster() == 0 {
		return nil, nil
	}

	clusters, err := v.table.WalkChain(entry.FirstCluster())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, size)
	for _, c := range clusters {
		buf, err := v.dev.ReadCluster(c)
		if err != nil {
			return nil, err
		}
		remaining := size - int64(len(out))
		if remaining <= 0 {
			break
		}
		if int64(len(buf)) > remaining {
			buf = buf[:remaining]
		}
		out = append(out, buf...)
	}
	return out, nil
}

// Delete frees name's cluster chain (if any) and tombstones its directory
// slot.
func (v *Volume) Delete(name string) error {
	slot, entry, found := v.dir.Find(name)
	if !found {
		return ferrors.NotFound
	}

	if first := entry.FirstCluster(); first != 0 {
		if err := v.table.FreeChain(first); err != nil {
			return err
		}
	}

	return v.dir.Tombstone(slot)
}

func clusterCount(size, clusterSize int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + clusterSize - 1) / clusterSize
}

