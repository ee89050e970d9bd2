package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestHelpDoesNotRequireDiskArgument(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"fatmod", "-h"}, &out)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "Usage:")
}

func TestTooFewArgumentsIsInvalid(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"fatmod", "disk.img"}, &out)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Invalid arguments. Please enter -h for help\n", out.String())
}

func TestUnknownVerbIsInvalid(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"fatmod", "disk.img", "-z"}, &out)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Invalid arguments. Please enter -h for help\n", out.String())
}

func TestMissingImageExitsOne(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"fatmod", filepath.Join(t.TempDir(), "missing.img"), "-l"}, &out)
	assert.Equal(t, 1, code)
}

// TestCreateListDeleteEndToEnd exercises scenario S1 end to end through
// the process-level entry point.
func TestCreateListDeleteEndToEnd(t *testing.T) {
	disk := newTestImage(t)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"fatmod", disk, "-c", "TEST.TXT"}, &out))
	assert.Contains(t, out.String(), "File created successfully!")

	out.Reset()
	require.Equal(t, 0, run([]string{"fatmod", disk, "-l"}, &out))
	assert.Equal(t, "TEST.TXT 0\n", out.String())

	out.Reset()
	require.Equal(t, 0, run([]string{"fatmod", disk, "-d", "TEST.TXT"}, &out))
	assert.Contains(t, out.String(), "File deleted successfully!")

	out.Reset()
	require.Equal(t, 0, run([]string{"fatmod", disk, "-l"}, &out))
	assert.Equal(t, "", out.String())
}

// TestCreateDuplicateReportsAlreadyExists exercises scenario S6.
func TestCreateDuplicateReportsAlreadyExists(t *testing.T) {
	disk := newTestImage(t)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"fatmod", disk, "-c", "A.B"}, &out))

	out.Reset()
	require.Equal(t, 0, run([]string{"fatmod", disk, "-c", "A.B"}, &out))
	assert.Equal(t, "File already exists!\n", out.String())
}

// TestWriteReadRoundTripEndToEnd exercises scenario S2.
func TestWriteReadRoundTripEndToEnd(t *testing.T) {
	disk := newTestImage(t)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"fatmod", disk, "-c", "TEST.TXT"}, &out))

	out.Reset()
	require.Equal(t, 0, run([]string{"fatmod", disk, "-w", "TEST.TXT", "0", "2000", "65"}, &out))
	assert.Contains(t, out.String(), "Bytes written to the file successfully!")

	out.Reset()
	require.Equal(t, 0, run([]string{"fatmod", disk, "-l"}, &out))
	assert.Equal(t, "TEST.TXT 2000\n", out.String())

	out.Reset()
	require.Equal(t, 0, run([]string{"fatmod", disk, "-r", "-a", "TEST.TXT"}, &out))
	assert.Equal(t, string(bytes.Repeat([]byte{'A'}, 2000))+"Succesfully read!\n", out.String())
}

// TestWriteInvalidOffsetEndToEnd exercises scenario S4.
func TestWriteInvalidOffsetEndToEnd(t *testing.T) {
	disk := newTestImage(t)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"fatmod", disk, "-c", "TEST.TXT"}, &out))
	require.Equal(t, 0, run([]string{"fatmod", disk, "-w", "TEST.TXT", "0", "2000", "65"}, &out))
	require.Equal(t, 0, run([]string{"fatmod", disk, "-w", "TEST.TXT", "2000", "500", "66"}, &out))

	out.Reset()
	code := run([]string{"fatmod", disk, "-w", "TEST.TXT", "3000", "1", "67"}, &out)
	assert.Equal(t, 0, code)
	assert.NotContains(t, out.String(), "successfully")
}

func TestReadRequiresExactlyOneModeFlag(t *testing.T) {
	disk := newTestImage(t)
	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"fatmod", disk, "-c", "TEST.TXT"}, &out))

	out.Reset()
	code := run([]string{"fatmod", disk, "-r", "TEST.TXT"}, &out)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Invalid arguments. Please enter -h for help\n", out.String())
}
