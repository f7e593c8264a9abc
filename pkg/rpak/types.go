package rpak

// PagePtr is a relocatable reference into the pak's paged region: a page
// index plus a byte offset within that page. {-1, 0} is the null pointer
// (spec §3).
type PagePtr struct {
	Index  int32
	Offset int32
}

// NullPagePtr is the canonical null reference.
var NullPagePtr = PagePtr{Index: -1, Offset: 0}

func (p PagePtr) IsNull() bool { return p.Index == -1 }

// Shifted returns p with Offset advanced by delta, used when a pointer is
// registered partway into a lump (e.g. a struct member inside a header).
func (p PagePtr) Shifted(delta int32) PagePtr {
	return PagePtr{Index: p.Index, Offset: p.Offset + delta}
}

// packedValue orders PagePtr the same way the original tool's
// PagePtr_t::value() does, by (index, offset) as a single 64-bit key; the
// descriptor tables are sorted by this value before writing (spec §3, §5).
func (p PagePtr) packedValue() uint64 {
	return uint64(uint32(p.Index))<<32 | uint64(uint32(p.Offset))
}

func comparePagePtr(a, b PagePtr) int {
	av, bv := a.packedValue(), b.packedValue()
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// FourCC is a 4-byte little-endian type tag, e.g. "txtr", "matl".
type FourCC uint32

// MakeFourCC packs a 4-character ASCII tag into a FourCC value.
func MakeFourCC(tag string) FourCC {
	var b [4]byte
	copy(b[:], tag)
	return FourCC(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func (f FourCC) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	// trim any trailing NULs the tag may have been padded with.
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

// Known asset type tags (spec §6 dispatch table).
var (
	AssetTypeTXTR = MakeFourCC("txtr")
	AssetTypeTXAN = MakeFourCC("txan")
	AssetTypeUIMG = MakeFourCC("uimg")
	AssetTypePTCH = MakeFourCC("Ptch")
	AssetTypeDTBL = MakeFourCC("dtbl")
	AssetTypeMATL = MakeFourCC("matl")
	AssetTypeRMDL = MakeFourCC("rmdl")
	AssetTypeASEQ = MakeFourCC("aseq")
	AssetTypeARIG = MakeFourCC("arig")
	AssetTypeSHDS = MakeFourCC("shds")
	AssetTypeSHDR = MakeFourCC("shdr")
)

// Page flags: the low bit marks CPU-visible ("SF_CPU") data, matching the
// original tool's SF_HEAD (0) / SF_CPU (1<<0) split between asset headers
// and their bulk data.
const (
	SlabFlagHead = 0
	SlabFlagCPU  = 1 << 0
)

// Lump is a single piece of content inside a page. A lump with Data == nil
// is a padding lump emitted to realign the following lump or the end of a
// page; it never crosses a page boundary (spec §3).
type Lump struct {
	Data      []byte // nil for a padding lump
	Size      int32
	Alignment int32
	PagePtr   PagePtr
}

func (l *Lump) IsPadding() bool { return l.Data == nil }

// Page is an ordered list of lumps sharing one data region. Page alignment
// is the max of its lumps'; page size is the sum of its lumps' aligned
// sizes. CreatePageLump only adds padding lumps around the lumps it places;
// a page's total size is padded to its alignment by PadSlabsAndPages
// (spec §3).
type Page struct {
	Index     int32
	SlabIndex int32
	Flags     int32
	Alignment int32
	DataSize  int32
	Lumps     []*Lump
}

// PageHeader is the 12-byte on-disk page header (spec §6).
type PageHeader struct {
	SlabIndex uint32
	Alignment uint32
	Size      uint32
}

// Slab is a memory region grouping pages with equal flags; its alignment is
// the max of its pages'. Up to 20 slabs per pak (spec §3).
type Slab struct {
	Index     int32
	Flags     uint32
	Alignment uint32
	DataSize  uint64
}

// SlabHeader is the 16-byte on-disk slab header (spec §6).
type SlabHeader struct {
	Flags     uint32
	Alignment uint32
	Size      uint64
}

// MaxSlabs is the hard cap on distinct slabs per pak (spec §4.2).
const MaxSlabs = 20

// MaxPageMergeSize is the hard page-merge size ceiling in bytes (spec §3).
const MaxPageMergeSize = 65_535

// GuidRef records that the bytes at PagePtr hold a GUID the runtime must
// resolve to a pointer (spec §3).
type GuidRef struct {
	PagePtr PagePtr
	Guid    uint64
}

// packStreamOffset packs a 52-bit byte offset and 12-bit stream-file index
// into the int64 stored in an asset record (spec §3, §4.4).
func packStreamOffset(offset int64, fileIndex uint32) int64 {
	return (offset << 12) | int64(fileIndex&0xFFF)
}

// NoStream is the "no streaming data" sentinel value for the packed stream
// offset fields (spec §3: "default -1").
const NoStream int64 = -1

// AssetRecord is the opaque-payload-plus-metadata struct written into the
// asset table (spec §3).
type AssetRecord struct {
	Guid    uint64
	Name    string // debug/dev builds only, not written to the file
	HeadPtr PagePtr
	HeadSize uint32
	CPUPtr  PagePtr

	StreamOffsetMandatory int64
	StreamOffsetOptional  int64

	PageEnd          uint16
	InternalDepCount uint16

	DependentsStart uint32
	DependentsCount uint32
	UsesStart       uint32
	UsesCount       uint32

	Type    FourCC
	Version uint32

	uses       []GuidRef
	dependents []uint32
}

// AssetRecordSizeV8 and AssetRecordSizeV7 are the on-disk asset record sizes
// actually emitted by WriteAssetRecord. Tracing the original tool's
// PakAsset_t field list (guid, 8 reserved bytes, two 8-byte PagePtr_t pairs,
// two packed 8-byte stream-offset fields, pageEnd+internalDependencyCount,
// four uint32 dependency counters, headDataSize, version, id) sums to 80
// bytes; version 7 drops the optional stream-offset field, giving 72. See
// DESIGN.md for this resolution (the same kind of byte-count correction made
// for HeaderSizeV8/HeaderSizeV7 in header.go).
const AssetRecordSizeV8 = 80

// AssetRecordSizeV7 omits the StreamOffsetOptional field.
const AssetRecordSizeV7 = 72
