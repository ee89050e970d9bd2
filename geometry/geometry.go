// Package geometry parses a FAT32 boot sector once at startup into the
// immutable derived constants every other component addresses the volume
// by.
//
// Fields are read at their named byte offsets explicitly, rather than cast
// onto a packed host struct the way the teacher's
// RawFATBootSectorWithBPB/binary.Read pairing does
// (_examples/dargueta-disko/drivers/fat/common.go) — the REDESIGN FLAGS
// note on byte-level struct overlays asks for exactly this.
package geometry

import (
	"encoding/binary"
	"fmt"

	ferrors "github.com/gorkemsolun/FAT32-File-System-Image-Modifier/errors"
	"github.com/hashicorp/go-multierror"
)

// Boot sector field offsets this parser reads (BIOS Parameter Block,
// FAT32 extension).
const (
	offBytesPerSector    = 11
	offSectorsPerCluster = 13
	offReservedSectors   = 14
	offNumFATs           = 16
	offTotalSectors32    = 32
	offFATSize32         = 36
	offRootCluster       = 44

	// maxUsableClusters is the FAT32 cluster-count ceiling spec.md §3 and
	// §9 call for clamping to explicitly (the teacher's mixed signed/
	// unsigned arithmetic left this undefined near 2^28).
	maxUsableClusters = 1 << 28
)

// Geometry holds the boot-sector-derived constants every other component
// addresses the volume by. It never changes after Parse returns.
type Geometry struct {
	SectorSize        uint32
	SectorsPerCluster uint32
	ReservedSectors   uint32
	NumFATs           uint32
	FATLengthSectors  uint32
	RootFirstCluster  uint32
	TotalSectors      uint32

	FATRegionOffset  int64
	DataRegionOffset int64
	ClusterSize      uint32
	UsableClusters   uint32
}

// Parse reads a 512-byte (or larger) boot sector and derives a Geometry.
// Non-default field values are reported, one WARNING line at a time,
// through warn — but parsing still proceeds, per spec.md §3's invariant.
// Parse fails with InvalidGeometry when the boot sector is too short to hold
// the fields it reads, when the sector size or sectors-per-cluster is zero,
// or when the reserved and FAT sectors exceed the total sector count.
func Parse(bootSector []byte, warn func(string)) (*Geometry, error) {
	if len(bootSector) < offRootCluster+4 {
		return nil, ferrors.InvalidGeometry.WithMessage("boot sector is too short to contain a BPB")
	}

	sectorSize := uint32(binary.LittleEndian.Uint16(bootSector[offBytesPerSector : offBytesPerSector+2]))
	if sectorSize == 0 {
		return nil, ferrors.InvalidGeometry.WithMessage("sector size is zero")
	}

	sectorsPerCluster := uint32(bootSector[offSectorsPerCluster])
	reservedSectors := uint32(binary.LittleEndian.Uint16(bootSector[offReservedSectors : offReservedSectors+2]))
	numFATs := uint32(bootSector[offNumFATs])
	totalSectors := binary.LittleEndian.Uint32(bootSector[offTotalSectors32 : offTotalSectors32+4])
	fatLengthSectors := binary.LittleEndian.Uint32(bootSector[offFATSize32 : offFATSize32+4])
	rootFirstCluster := binary.LittleEndian.Uint32(bootSector[offRootCluster : offRootCluster+4])

	if sectorsPerCluster == 0 {
		return nil, ferrors.InvalidGeometry.WithMessage("sectors per cluster is zero")
	}

	reportNonDefaultGeometry(warn, sectorSize, sectorsPerCluster, numFATs, rootFirstCluster, reservedSectors)

	fatRegionOffset := int64(reservedSectors) * int64(sectorSize)
	dataRegionOffset := int64(reservedSectors+numFATs*fatLengthSectors) * int64(sectorSize)
	clusterSize := sectorsPerCluster * sectorSize

	dataSectors := int64(totalSectors) - int64(reservedSectors) - int64(numFATs)*int64(fatLengthSectors)
	if dataSectors < 0 {
		return nil, ferrors.InvalidGeometry.WithMessage("reserved and FAT sectors exceed total sectors")
	}

	byGeometry := uint64(dataSectors) / uint64(sectorsPerCluster)
	byFATCapacity := uint64(0)
	if fatLengthSectors > 0 {
		fatBytes := uint64(fatLengthSectors) * uint64(sectorSize)
		if fatBytes >= 4*2 {
			byFATCapacity = fatBytes/4 - 2
		}
	}

	usable := byGeometry
	if byFATCapacity < usable {
		usable = byFATCapacity
	}
	if usable > maxUsableClusters {
		usable = maxUsableClusters
	}

	return &Geometry{
		SectorSize:        sectorSize,
		SectorsPerCluster: sectorsPerCluster,
		ReservedSectors:   reservedSectors,
		NumFATs:           numFATs,
		FATLengthSectors:  fatLengthSectors,
		RootFirstCluster:  rootFirstCluster,
		TotalSectors:      totalSectors,
		FATRegionOffset:   fatRegionOffset,
		DataRegionOffset:  dataRegionOffset,
		ClusterSize:       clusterSize,
		UsableClusters:    uint32(usable),
	}, nil
}

// reportNonDefaultGeometry collects every deviation from the default
// geometry (512 B sectors, 2 sectors/cluster, 1 FAT, root cluster 2, 32
// reserved sectors) into a single multierror, then emits each as its own
// WARNING line — an accumulate-then-report idiom for a handful of
// independent, non-fatal anomalies rather than a multi-value return.
func reportNonDefaultGeometry(
	warn func(string),
	sectorSize, sectorsPerCluster, numFATs, rootFirstCluster, reservedSectors uint32,
) {
	var warnings *multierror.Error

	if sectorSize != 512 {
		warnings = multierror.Append(warnings, fmt.Errorf("non-default sector size %d (expected 512)", sectorSize))
	}
	if sectorsPerCluster != 2 {
		warnings = multierror.Append(warnings, fmt.Errorf("non-default sectors per cluster %d (expected 2)", sectorsPerCluster))
	}
	if numFATs != 1 {
		warnings = multierror.Append(warnings, fmt.Errorf("non-default FAT count %d (expected 1); mirroring is not supported", numFATs))
	}
	if rootFirstCluster != 2 {
		warnings = multierror.Append(warnings, fmt.Errorf("non-default root directory cluster %d (expected 2)", rootFirstCluster))
	}
	if reservedSectors != 32 {
		warnings = multierror.Append(warnings, fmt.Errorf("non-default reserved sector count %d (expected 32)", reservedSectors))
	}

	if warnings == nil || warn == nil {
		return
	}
	for _, err := range warnings.Errors {
		warn(fmt.Sprintf("WARNING: %s", err.Error()))
	}
}
