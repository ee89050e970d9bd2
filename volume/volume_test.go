package volume_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	ferrors "github.com/gorkemsolun/FAT32-File-System-Image-Modifier/errors"
	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestImage writes a fresh, empty FAT32 image to a temp file with the
// default geometry spec.md's end-to-end scenarios assume: 8 MiB, 512-byte
// sectors, 2 sectors/cluster, 32 reserved sectors, one FAT, root at cluster
// 2. Unlike internal/testimage (an in-memory io.ReaderAt/WriterAt), this
// needs a real path on disk since Volume.Open always calls os.OpenFile.
func newTestImage(t *testing.T) string {
	t.Helper()

	const (
		sectorSize        = 512
		sectorsPerCluster = 2
		reservedSectors   = 32
		numFATs           = 1
		fatSize32         = 64
		rootCluster       = 2
		totalSize         = 8 * 1024 * 1024
	)

	raw := make([]byte, totalSize)
	boot := raw[:sectorSize]
	binary.LittleEndian.PutUint16(boot[11:13], sectorSize)
	boot[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:16], reservedSectors)
	boot[16] = numFATs
	binary.LittleEndian.PutUint32(boot[32:36], totalSize/sectorSize)
	binary.LittleEndian.PutUint32(boot[36:40], fatSize32)
	binary.LittleEndian.PutUint32(boot[44:48], rootCluster)

	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func openTestVolume(t *testing.T) (*volume.Volume, []string) {
	t.Helper()
	var warnings []string
	vol, err := volume.Open(newTestImage(t), func(msg string) { warnings = append(warnings, msg) })
	require.NoError(t, err)
	t.Cleanup(func() { vol.Close() })
	return vol, warnings
}

func TestOpenDefaultGeometryHasNoWarnings(t *testing.T) {
	_, warnings := openTestVolume(t)
	assert.Empty(t, warnings)
}

func TestOpenMissingFileFails(t *testing.T) {
	_, err := volume.Open(filepath.Join(t.TempDir(), "missing.img"), nil)
	assert.ErrorIs(t, err, ferrors.IOOpen)
}

// TestCreateListDeleteRoundTrip exercises scenario S1: create a file,
// see it listed, delete it, see it disappear.
func TestCreateListDeleteRoundTrip(t *testing.T) {
	vol, _ := openTestVolume(t)

	require.NoError(t, vol.Create("HELLO.TXT"))

	var out bytes.Buffer
	require.NoError(t, vol.List(&out))
	assert.Equal(t, "HELLO.TXT 0\n", out.String())

	require.NoError(t, vol.Delete("HELLO.TXT"))

	out.Reset()
	require.NoError(t, vol.List(&out))
	assert.Equal(t, "", out.String())
}

// TestCreateDuplicateFails exercises scenario S6: creating a file that
// already exists is rejected without touching the existing entry.
func TestCreateDuplicateFails(t *testing.T) {
	vol, _ := openTestVolume(t)

	require.NoError(t, vol.Create("DUPE.TXT"))
	err := vol.Create("DUPE.TXT")
	assert.ErrorIs(t, err, ferrors.AlreadyExists)

	var out bytes.Buffer
	require.NoError(t, vol.List(&out))
	assert.Equal(t, "DUPE.TXT 0\n", out.String())
}

func TestWriteUnknownFileFails(t *testing.T) {
	vol, _ := openTestVolume(t)
	err := vol.Write("NOPE.TXT", 0, 10, 0xAA)
	assert.ErrorIs(t, err, ferrors.NotFound)
}

func TestWriteBeyondEndOfFileFails(t *testing.T) {
	vol, _ := openTestVolume(t)
	require.NoError(t, vol.Create("A.TXT"))
	err := vol.Write("A.TXT", 100, 1, 0xFF)
	assert.ErrorIs(t, err, ferrors.InvalidOffset)
}

// TestWriteGrowsFileAndIsReadableBack exercises scenario S2: writing past
// the current size grows the file, allocates clusters, and the written
// bytes read back exactly as written.
func TestWriteGrowsFileAndIsReadableBack(t *testing.T) {
	vol, _ := openTestVolume(t)
	require.NoError(t, vol.Create("GROW.TXT"))

	require.NoError(t, vol.Write("GROW.TXT", 0, 10, 0x41))

	var out bytes.Buffer
	require.NoError(t, vol.Read("GROW.TXT", volume.ReadASCII, &out))
	assert.Equal(t, bytes.Repeat([]byte{0x41}, 10), out.Bytes())

	var listing bytes.Buffer
	require.NoError(t, vol.List(&listing))
	assert.Equal(t, "GROW.TXT 10\n", listing.String())
}

// TestWriteSpanningMultipleClustersAllocatesAndLinks exercises a write long
// enough to need more than one cluster (the default geometry's cluster
// size is 1024 bytes), verifying the chain is built and fully written.
func TestWriteSpanningMultipleClustersAllocatesAndLinks(t *testing.T) {
	vol, _ := openTestVolume(t)
	require.NoError(t, vol.Create("BIG.TXT"))

	const length = 2500 // spans three 1024-byte clusters
	require.NoError(t, vol.Write("BIG.TXT", 0, length, 0x5A))

	var out bytes.Buffer
	require.NoError(t, vol.Read("BIG.TXT", volume.ReadASCII, &out))
	assert.Equal(t, bytes.Repeat([]byte{0x5A}, length), out.Bytes())
}

// TestWriteTwiceIsLocalAndIdempotent exercises scenario S3: overwriting an
// already-written region with the same value twice leaves identical
// contents, and writing a different region doesn't disturb the first.
func TestWriteTwiceIsLocalAndIdempotent(t *testing.T) {
	vol, _ := openTestVolume(t)
	require.NoError(t, vol.Create("TWICE.TXT"))

	require.NoError(t, vol.Write("TWICE.TXT", 0, 20, 0x11))
	require.NoError(t, vol.Write("TWICE.TXT", 0, 20, 0x11))

	var first bytes.Buffer
	require.NoError(t, vol.Read("TWICE.TXT", volume.ReadASCII, &first))
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 20), first.Bytes())

	require.NoError(t, vol.Write("TWICE.TXT", 20, 5, 0x22))

	var second bytes.Buffer
	require.NoError(t, vol.Read("TWICE.TXT", volume.ReadASCII, &second))
	assert.Equal(t, append(bytes.Repeat([]byte{0x11}, 20), bytes.Repeat([]byte{0x22}, 5)...), second.Bytes())
}

func TestReadUnknownFileFails(t *testing.T) {
	vol, _ := openTestVolume(t)
	var out bytes.Buffer
	err := vol.Read("NOPE.TXT", volume.ReadASCII, &out)
	assert.ErrorIs(t, err, ferrors.NotFound)
}

func TestReadEmptyFileProducesNoOutput(t *testing.T) {
	vol, _ := openTestVolume(t)
	require.NoError(t, vol.Create("EMPTY.TXT"))

	var out bytes.Buffer
	require.NoError(t, vol.Read("EMPTY.TXT", volume.ReadASCII, &out))
	assert.Empty(t, out.Bytes())
}

func TestReadBinaryModeFormatsAsHexDump(t *testing.T) {
	vol, _ := openTestVolume(t)
	require.NoError(t, vol.Create("HEX.TXT"))
	require.NoError(t, vol.Write("HEX.TXT", 0, 4, 0xAB))

	var out bytes.Buffer
	require.NoError(t, vol.Read("HEX.TXT", volume.ReadBinary, &out))
	assert.Equal(t, "00000000 AB AB AB AB\n", out.String())
}

// TestDeleteUnknownFileFails checks that deleting a missing file fails with
// NotFound.
func TestDeleteUnknownFileFails(t *testing.T) {
	vol, _ := openTestVolume(t)
	err := vol.Delete("NOPE.TXT")
	assert.ErrorIs(t, err, ferrors.NotFound)
}

// TestDeleteReclaimsClusters exercises scenario S5: deleting a file frees
// every cluster in its chain, and those clusters can be reused by a later
// allocation.
func TestDeleteReclaimsClusters(t *testing.T) {
	path := newTestImage(t)
	vol, err := volume.Open(path, nil)
	require.NoError(t, err)
	defer vol.Close()

	require.NoError(t, vol.Create("A.TXT"))
	require.NoError(t, vol.Write("A.TXT", 0, 3000, 0x01))

	require.NoError(t, vol.Delete("A.TXT"))

	// The 3000-byte write took clusters 3, 4 and 5 (the first free ones
	// after the root directory's cluster 2); their FAT entries must now be
	// free again.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	const fatRegionOffset = 32 * 512
	for c := 3; c <= 5; c++ {
		assert.Zero(t, binary.LittleEndian.Uint32(raw[fatRegionOffset+4*c:]), "cluster %d", c)
	}

	// A second file then allocates the same number of clusters and reads
	// back its own bytes.
	require.NoError(t, vol.Create("B.TXT"))
	require.NoError(t, vol.Write("B.TXT", 0, 3000, 0x02))

	var out bytes.Buffer
	require.NoError(t, vol.Read("B.TXT", volume.ReadASCII, &out))
	assert.Equal(t, bytes.Repeat([]byte{0x02}, 3000), out.Bytes())
}

// TestNonDefaultGeometryWarnsButStillWorks exercises the geometry
// component's "warn, don't fail" invariant as seen through the volume
// layer: a non-default sectors-per-cluster value still produces a usable
// volume, just with a warning surfaced to the caller.
func TestNonDefaultGeometryWarnsButStillWorks(t *testing.T) {
	path := newTestImage(t)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[13] = 4 // sectors per cluster, default is 2
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	var warnings []string
	vol, err := volume.Open(path, func(msg string) { warnings = append(warnings, msg) })
	require.NoError(t, err)
	defer vol.Close()

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "sectors per cluster")

	require.NoError(t, vol.Create("OK.TXT"))
}
