// Package directory implements the Directory component: parsing and
// serializing the 32-byte directory entries found in the root directory's
// single cluster, the 8.3 short-name codec, and slot lookup/allocation.
//
// DirEntry parsing is grounded on the teacher's RawDirent/Dirent split
// (_examples/dargueta-disko/drivers/fat/dirent.go); entry serialization
// uses the same noxer/bytewriter sequential-field-write idiom the teacher
// applies in file_systems/unixv1/format.go.
package directory

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/blockdevice"
	ferrors "github.com/gorkemsolun/FAT32-File-System-Image-Modifier/errors"
	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/geometry"
	"github.com/noxer/bytewriter"
)

// EntrySize is the size, in bytes, of one directory entry.
const EntrySize = 32

const (
	byteUnused     = 0x00
	byteTombstoned = 0xE5
)

// Attribute flags, per spec.md §3's directory entry table.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrLongName  = 0x0F
	AttrArchive   = 0x20
	AttrRegular   = 0x20
)

// Kind tags what a directory slot represents — the "polymorphism over
// entry kinds" design note, implemented as a flat struct plus a
// discriminant rather than an interface hierarchy, the way the teacher's
// own Dirent carries one AttributeFlags field its callers switch on.
type Kind int

const (
	KindUnused Kind = iota
	KindTombstoned
	KindVolumeLabel
	KindLongName
	KindSubdirectory
	KindFile
)

// DirEntry is the parsed view of one 32-byte directory slot.
type DirEntry struct {
	Kind Kind

	ShortName        [11]byte
	Attributes       uint8
	CreateTimeCentis uint8
	CreateTime       uint16
	CreateDate       uint16
	LastAccessDate   uint16
	FirstClusterHigh uint16
	LastWriteTime    uint16
	LastWriteDate    uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

// FirstCluster reconstructs the entry's starting cluster from its high/low
// halves. Zero means no blocks are allocated.
func (e *DirEntry) FirstCluster() uint32 {
	return (uint32(e.FirstClusterHigh) << 16) | uint32(e.FirstClusterLow)
}

// SetFirstCluster installs c as the entry's starting cluster.
func (e *DirEntry) SetFirstCluster(c uint32) {
	e.FirstClusterHigh = uint16(c >> 16)
	e.FirstClusterLow = uint16(c)
}

// Name decodes the entry's 8.3 short name into a display string.
func (e *DirEntry) Name() string {
	return DecodeName(e.ShortName)
}

// parseEntry interprets a raw 32-byte slot.
func parseEntry(raw []byte) DirEntry {
	e := DirEntry{
		Attributes:       raw[11],
		CreateTimeCentis: raw[13],
		CreateTime:       binary.LittleEndian.Uint16(raw[14:16]),
		CreateDate:       binary.LittleEndian.Uint16(raw[16:18]),
		LastAccessDate:   binary.LittleEndian.Uint16(raw[18:20]),
		FirstClusterHigh: binary.LittleEndian.Uint16(raw[20:22]),
		LastWriteTime:    binary.LittleEndian.Uint16(raw[22:24]),
		LastWriteDate:    binary.LittleEndian.Uint16(raw[24:26]),
		FirstClusterLow:  binary.LittleEndian.Uint16(raw[26:28]),
		FileSize:         binary.LittleEndian.Uint32(raw[28:32]),
	}
	copy(e.ShortName[:], raw[0:11])

	switch {
	case raw[0] == byteUnused:
		e.Kind = KindUnused
	case raw[0] == byteTombstoned:
		e.Kind = KindTombstoned
	case e.Attributes&AttrLongName == AttrLongName:
		e.Kind = KindLongName
	case e.Attributes&AttrVolumeID != 0:
		e.Kind = KindVolumeLabel
	case e.Attributes&AttrDirectory != 0:
		e.Kind = KindSubdirectory
	default:
		e.Kind = KindFile
	}

	return e
}

// Encode serializes e back into 32 on-disk bytes, writing each field in
// offset order through a fixed-size sequential writer — the same idiom
// the teacher uses to build on-disk records in
// file_systems/unixv1/format.go.
func (e *DirEntry) Encode() [EntrySize]byte {
	var out [EntrySize]byte
	w := bytewriter.New(out[:])

	w.Write(e.ShortName[:])
	binary.Write(w, binary.LittleEndian, e.Attributes)
	binary.Write(w, binary.LittleEndian, uint8(0)) // NT reserved
	binary.Write(w, binary.LittleEndian, e.CreateTimeCentis)
	binary.Write(w, binary.LittleEndian, e.CreateTime)
	binary.Write(w, binary.LittleEndian, e.CreateDate)
	binary.Write(w, binary.LittleEndian, e.LastAccessDate)
	binary.Write(w, binary.LittleEndian, e.FirstClusterHigh)
	binary.Write(w, binary.LittleEndian, e.LastWriteTime)
	binary.Write(w, binary.LittleEndian, e.LastWriteDate)
	binary.Write(w, binary.LittleEndian, e.FirstClusterLow)
	binary.Write(w, binary.LittleEndian, e.FileSize)

	return out
}

// EncodeName turns a human-readable name into its 11-byte 8.3 short-name
// form: uppercased, split on the first '.', name left-justified in 8
// bytes and extension in 3, both space-padded. Only [A-Z0-9_-] is allowed
// in either half.
func EncodeName(input string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	upper := strings.ToUpper(input)
	name := upper
	ext := ""
	if idx := strings.IndexByte(upper, '.'); idx >= 0 {
		name = upper[:idx]
		ext = upper[idx+1:]
	}

	if len(name) == 0 || len(name) > 8 || len(ext) > 3 {
		return out, ferrors.InvalidName.WithMessage(input)
	}
	if !isValidShortNamePart(name) || !isValidShortNamePart(ext) {
		return out, ferrors.InvalidName.WithMessage(input)
	}

	copy(out[0:8], name)
	copy(out[8:11], ext)
	return out, nil
}

func isValidShortNamePart(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

// DecodeName turns an 11-byte short name back into a display string:
// trailing spaces are stripped from each half, and the two are rejoined
// with a '.' iff the extension is non-empty. A byte outside
// [A-Za-z0-9_-] terminates decoding early and is treated as padding.
func DecodeName(raw [11]byte) string {
	name := decodeShortNamePart(raw[0:8])
	ext := decodeShortNamePart(raw[8:11])

	if ext == "" {
		return name
	}
	return name + "." + ext
}

func decodeShortNamePart(raw []byte) string {
	var b strings.Builder
	for _, c := range raw {
		if c == ' ' {
			break
		}
		if !isValidShortNameByte(c) {
			break
		}
		b.WriteByte(c)
	}
	return strings.TrimRight(b.String(), " ")
}

func isValidShortNameByte(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	default:
		return false
	}
}

// Directory holds the single root-directory cluster loaded into memory, as
// spec.md §4.4 describes; this tool never addresses subdirectories.
type Directory struct {
	dev     *blockdevice.Device
	cluster uint32
	offset  int64
	buf     []byte
}

// Load reads the root directory's cluster into memory.
func Load(dev *blockdevice.Device, geo *geometry.Geometry) (*Directory, error) {
	buf, err := dev.ReadCluster(geo.RootFirstCluster)
	if err != nil {
		return nil, err
	}
	return &Directory{
		dev:     dev,
		cluster: geo.RootFirstCluster,
		offset:  geo.DataRegionOffset + int64(geo.RootFirstCluster-2)*int64(geo.ClusterSize),
		buf:     buf,
	}, nil
}

// Slot pairs a parsed entry with the index it occupies.
type Slot struct {
	Index int
	Entry DirEntry
}

func (d *Directory) numSlots() int {
	return len(d.buf) / EntrySize
}

func (d *Directory) slotBytes(index int) []byte {
	return d.buf[index*EntrySize : (index+1)*EntrySize]
}

// Iterate returns every slot in the directory, including unused and
// tombstoned ones.
func (d *Directory) Iterate() []Slot {
	slots := make([]Slot, 0, d.numSlots())
	for i := 0; i < d.numSlots(); i++ {
		slots = append(slots, Slot{Index: i, Entry: parseEntry(d.slotBytes(i))})
	}
	return slots
}

// Find locates the unique live file entry whose decoded name
// case-insensitively matches name.
func (d *Directory) Find(name string) (slot int, entry DirEntry, found bool) {
	target := strings.ToUpper(name)
	for _, s := range d.Iterate() {
		if s.Entry.Kind == KindFile && strings.ToUpper(s.Entry.Name()) == target {
			return s.Index, s.Entry, true
		}
	}
	return 0, DirEntry{}, false
}

// FindFreeSlot returns the index of the first unused or tombstoned slot.
func (d *Directory) FindFreeSlot() (slot int, found bool) {
	for _, s := range d.Iterate() {
		if s.Entry.Kind == KindUnused || s.Entry.Kind == KindTombstoned {
			return s.Index, true
		}
	}
	return 0, false
}

// WriteEntry serializes entry and persists it at slot index.
func (d *Directory) WriteEntry(index int, entry DirEntry) error {
	raw := entry.Encode()
	copy(d.slotBytes(index), raw[:])
	return d.dev.WriteRange(d.offset+int64(index)*EntrySize, raw[:])
}

// Tombstone marks slot index as deleted by overwriting its first byte.
func (d *Directory) Tombstone(index int) error {
	d.slotBytes(index)[0] = byteTombstoned
	return d.dev.WriteRange(d.offset+int64(index)*EntrySize, []byte{byteTombstoned})
}

// List writes one line per live file entry ("NAME.EXT size"), one line for
// the volume label if present ("Volume label: NAME"), and a warning for
// any unsupported entry kind (long name fragments, subdirectories).
func (d *Directory) List(w io.Writer) error {
	for _, s := range d.Iterate() {
		switch s.Entry.Kind {
		case KindFile:
			if _, err := fmt.Fprintf(w, "%s %d\n", s.Entry.Name(), s.Entry.FileSize); err != nil {
				return err
			}
		case KindVolumeLabel:
			if _, err := fmt.Fprintf(w, "Volume label: %s\n", s.Entry.Name()); err != nil {
				return err
			}
		case KindLongName:
			if _, err := fmt.Fprintln(w, "WARNING: skipping unsupported long-name entry"); err != nil {
				return err
			}
		case KindSubdirectory:
			if _, err := fmt.Fprintf(w, "WARNING: skipping unsupported subdirectory %q\n", s.Entry.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewFileEntry builds a freshly-created file's directory entry: attribute
// regular, size 0, no cluster allocated yet, timestamps derived from now.
func NewFileEntry(shortName [11]byte, now time.Time) DirEntry {
	date, tod, centis := packTimestamp(now)
	return DirEntry{
		Kind:             KindFile,
		ShortName:        shortName,
		Attributes:       AttrRegular,
		CreateTimeCentis: centis,
		CreateTime:       tod,
		CreateDate:       date,
		LastAccessDate:   date,
		LastWriteTime:    tod,
		LastWriteDate:    date,
	}
}

// TouchWrite refreshes last-write/last-access fields on entry in place, as
// the Write operation's step 4 requires.
func TouchWrite(entry *DirEntry, now time.Time) {
	date, tod, _ := packTimestamp(now)
	entry.LastWriteDate = date
	entry.LastWriteTime = tod
	entry.LastAccessDate = date
}

// packTimestamp is the inverse of the teacher's DateFromInt/
// TimestampFromParts unpacking
// (_examples/dargueta-disko/drivers/fat/dirent.go): it packs a wall-clock
// time.Time into FAT's date/time/centisecond fields.
func packTimestamp(t time.Time) (date uint16, timeOfDay uint16, centis uint8) {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	date = uint16(year<<9) | uint16(int(t.Month())<<5) | uint16(t.Day())
	timeOfDay = uint16(t.Hour()<<11) | uint16(t.Minute()<<5) | uint16(t.Second()/2)
	centis = uint8((t.Second()%2)*100) + uint8(t.Nanosecond()/10_000_000)
	return date, timeOfDay, centis
}
