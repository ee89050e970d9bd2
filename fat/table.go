// Package fat implements the FAT Table component: reading and writing
// 32-bit FAT entries by cluster number, walking and building cluster
// chains, and scanning for free clusters.
//
// Chain bounds checking and cycle detection are grounded on the teacher's
// listClusters/getClusterInChain
// (_examples/dargueta-disko/drivers/fat/driverbase.go); the sentinel value
// ranges are cross-checked against
// _examples/other_examples/48d5dae8_diskfs-go-diskfs__filesystem-fat32-table.go.go's
// FAT32 table parser.
package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/blockdevice"
	ferrors "github.com/gorkemsolun/FAT32-File-System-Image-Modifier/errors"
	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/geometry"
)

// Entry is a raw 32-bit FAT entry. Only the low 28 bits carry a value; the
// high 4 bits are reserved and ignored on read.
type Entry uint32

const (
	entryFree          = 0x00000000
	entryMinBad        = 0x0FFFFFF0
	entryBad           = 0x0FFFFFF7
	entryMinEndOfChain = 0x0FFFFFF8
	valueMask          = 0x0FFFFFFF
)

// IsFree reports whether the entry marks its cluster unallocated.
func (e Entry) IsFree() bool { return uint32(e)&valueMask == entryFree }

// IsEndOfChain reports whether the entry terminates a cluster chain.
func (e Entry) IsEndOfChain() bool { return uint32(e)&valueMask >= entryMinEndOfChain }

// IsBad reports whether the entry marks its cluster as bad.
func (e Entry) IsBad() bool { return uint32(e)&valueMask == entryBad }

// IsReserved reports whether the entry falls in the reserved range.
func (e Entry) IsReserved() bool {
	v := uint32(e) & valueMask
	return v >= entryMinBad && v < entryBad
}

// Next returns the next-cluster pointer this entry carries. Only
// meaningful when the entry is none of Free/EndOfChain/Bad/Reserved.
func (e Entry) Next() uint32 { return uint32(e) & valueMask }

// Table is the FAT Table component: it addresses 32-bit FAT entries by
// cluster number and implements chain walking, allocation, and
// reclamation over a configured Device.
type Table struct {
	dev              *blockdevice.Device
	regionOffset     int64
	rootFirstCluster uint32
	usableClusters   uint32
}

// New builds a Table over dev addressing entries relative to geo's FAT
// region. dev must already be open on the same image geo was parsed from.
func New(dev *blockdevice.Device, geo *geometry.Geometry) *Table {
	return &Table{
		dev:              dev,
		regionOffset:     geo.FATRegionOffset,
		rootFirstCluster: geo.RootFirstCluster,
		usableClusters:   geo.UsableClusters,
	}
}

func (t *Table) entryOffset(cluster uint32) int64 {
	return t.regionOffset + int64(cluster)*4
}

// ReadEntry reads the raw FAT entry for cluster.
func (t *Table) ReadEntry(cluster uint32) (Entry, error) {
	buf := make([]byte, 4)
	if err := t.dev.ReadRange(t.entryOffset(cluster), buf); err != nil {
		return 0, err
	}
	return Entry(binary.LittleEndian.Uint32(buf)), nil
}

// WriteEntry writes value's low 28 bits as the FAT entry for cluster. The
// high 4 bits are zeroed since every sentinel this module writes is
// already canonical.
func (t *Table) WriteEntry(cluster uint32, value uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value&valueMask)
	return t.dev.WriteRange(t.entryOffset(cluster), buf)
}

// Chain is a restartable, lazy cluster-chain iterator — the "cluster walk
// / iterator" design note: chain walking is a finite sequence producer
// parameterized by a starting cluster, not an eagerly materialized slice.
type Chain struct {
	table   *Table
	current uint32
	started bool
	done    bool
	steps   uint32
}

// Chain returns an iterator over the cluster chain beginning at start. It
// does not read anything until Next is first called.
func (t *Table) Chain(start uint32) *Chain {
	return &Chain{table: t, current: start}
}

// Next advances the iterator and returns the next cluster in the chain. ok
// is false once the chain has been fully consumed (with err == nil) or
// once an error has been hit (with err != nil: BadChain, or the failure
// from reading a FAT entry; this is also terminal).
func (c *Chain) Next() (cluster uint32, ok bool, err error) {
	if c.done {
		return 0, false, nil
	}

	if !c.started {
		c.started = true
		if !clusterInRange(c.current, c.table.usableClusters) {
			c.done = true
			return 0, false, ferrors.BadChain.WithMessage(
				fmt.Sprintf("chain start cluster %d out of range", c.current))
		}
		return c.current, true, nil
	}

	c.steps++
	if c.steps > c.table.usableClusters {
		c.done = true
		return 0, false, ferrors.BadChain.WithMessage("chain exceeds usable cluster count; loop suspected")
	}

	entry, err := c.table.ReadEntry(c.current)
	if err != nil {
		c.done = true
		return 0, false, err
	}

	if entry.IsEndOfChain() {
		c.done = true
		return 0, false, nil
	}

	next := entry.Next()
	if !clusterInRange(next, c.table.usableClusters) {
		c.done = true
		return 0, false, ferrors.BadChain.WithMessage(
			fmt.Sprintf("cluster %d points to out-of-range cluster %d", c.current, next))
	}

	c.current = next
	return c.current, true, nil
}

func clusterInRange(cluster, usableClusters uint32) bool {
	return cluster >= 2 && cluster <= usableClusters+1
}

// WalkChain drains a Chain iterator starting at start into a slice, for
// callers that need the whole chain at once (finding the tail to extend,
// reading).
func (t *Table) WalkChain(start uint32) ([]uint32, error) {
	chain := t.Chain(start)
	var clusters []uint32
	for {
		cluster, ok, err := chain.Next()
		if err != nil {
			return clusters, err
		}
		if !ok {
			return clusters, nil
		}
		clusters = append(clusters, cluster)
	}
}

// FindFree linear-scans from rootFirstCluster+1 through usableClusters+1
// (the highest valid cluster number) and returns the first free cluster
// found. There is deliberately no free-list
// cache (spec.md's FAT Table Non-goal).
func (t *Table) FindFree() (cluster uint32, found bool, err error) {
	for c := t.rootFirstCluster + 1; c <= t.usableClusters+1; c++ {
		entry, err := t.ReadEntry(c)
		if err != nil {
			return 0, false, err
		}
		if entry.IsFree() {
			return c, true, nil
		}
	}
	return 0, false, nil
}

// AllocateAndLink finds n free clusters, marks each as end-of-chain, then
// links them prev -> c1 -> c2 -> ... -> cn (the last remains end-of-chain).
// If prev is 0, the caller is responsible for installing c1 as the first
// cluster of whatever directory entry owns this chain.
//
// Partial success is not rolled back on I/O failure: if a write fails
// partway through, the FAT may be left with some clusters already marked
// end-of-chain or linked. Callers must propagate the error; the invariant
// that every marked cluster is either end-of-chain or a valid next pointer
// still holds.
func (t *Table) AllocateAndLink(prev uint32, n int) ([]uint32, error) {
	if n <= 0 {
		return nil, nil
	}

	clusters := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		c, found, err := t.FindFree()
		if err != nil {
			return clusters, err
		}
		if !found {
			return clusters, ferrors.NoSpace
		}
		if err := t.WriteEntry(c, entryMinEndOfChain); err != nil {
			return clusters, err
		}
		clusters = append(clusters, c)
	}

	link := prev
	for _, c := range clusters {
		if link != 0 {
			if err := t.WriteEntry(link, c); err != nil {
				return clusters, err
			}
		}
		link = c
	}

	return clusters, nil
}

// FreeChain walks the chain from start and writes the free sentinel to
// every visited entry. If the walk fails partway through, it halts and
// surfaces the error; clusters already freed remain free, which preserves
// the "a free entry is reachable from no live file" invariant.
func (t *Table) FreeChain(start uint32) error {
	if start == 0 {
		return nil
	}

	chain := t.Chain(start)
	for {
		cluster, ok, err := chain.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := t.WriteEntry(cluster, entryFree); err != nil {
			return err
		}
	}
}
