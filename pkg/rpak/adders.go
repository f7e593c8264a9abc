package rpak

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/r-ex/repak/pkg/rpak/rpakerr"
)

// AssetAdder populates one asset's lumps and pointer/guid registrations into
// b, given the raw map-file entry that named it (spec §6: "Adders are
// external collaborators").
type AssetAdder func(b *PakBuilder, guid uint64, entry MapAssetEntry) error

// dispatchKey selects an adder by $type and pak version (spec §6: "Asset
// dispatch table").
type dispatchKey struct {
	Type    FourCC
	Version uint16
}

var adderTable = map[dispatchKey]AssetAdder{
	{AssetTypePTCH, 7}: AddPatchAsset,
	{AssetTypePTCH, 8}: AddPatchAsset,
	{AssetTypeDTBL, 7}: AddDataTableAssetV0,
	{AssetTypeDTBL, 8}: AddDataTableAssetV1,
	{AssetTypeTXTR, 7}: AddTextureAsset,
	{AssetTypeTXTR, 8}: AddTextureAsset,
}

// LookupAdder resolves the adder for a $type tag on the given pak version.
func LookupAdder(typeTag string, version uint16) (AssetAdder, error) {
	fourcc := MakeFourCC(typeTag)
	adder, ok := adderTable[dispatchKey{fourcc, version}]
	if !ok {
		if _, knownOnOtherVersion := adderTable[dispatchKey{fourcc, 15 - version}]; knownOnOtherVersion {
			return nil, fmt.Errorf("%w: %q on version %d", rpakerr.ErrUnsupportedOnVersion, typeTag, version)
		}
		return nil, fmt.Errorf("%w: %q", rpakerr.ErrUnknownAssetType, typeTag)
	}
	return adder, nil
}

// --- Ptch --------------------------------------------------------------

type patchMapEntry struct {
	Entries []struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	} `json:"entries"`
}

// patchAssetHeaderSize is sizeof(PatchAssetHeader_t): unknown_1 (u32),
// patchedPakCount (u32), pPakNames (PagePtr_t, 8), pPakPatchNums
// (PagePtr_t, 8) = 24.
const patchAssetHeaderSize = 24

// AddPatchAsset adds a "Ptch" asset: a header naming every pak this patch
// pak supersedes, plus the highest patch number known for each, grounded on
// the original tool's Assets::AddPatchAsset (spec §6 dispatch table; S2).
func AddPatchAsset(b *PakBuilder, guid uint64, entry MapAssetEntry) error {
	var parsed patchMapEntry
	if err := json.Unmarshal(entry.Raw, &parsed); err != nil {
		return fmt.Errorf("%w: Ptch %q: %v", rpakerr.ErrMissingRequiredField, entry.Path, err)
	}
	if len(parsed.Entries) == 0 {
		return fmt.Errorf("%w: Ptch %q has no \"entries\"", rpakerr.ErrMissingRequiredField, entry.Path)
	}

	if err := b.BeginAsset(guid, entry.Path); err != nil {
		return err
	}

	hdrLump, err := b.CreatePageLump(patchAssetHeaderSize, SlabFlagHead, 8, nil)
	if err != nil {
		return err
	}

	count := uint32(len(parsed.Entries))
	binary.LittleEndian.PutUint32(hdrLump.Data[0:4], 0xFF)
	binary.LittleEndian.PutUint32(hdrLump.Data[4:8], count)

	namesSectionSize := 0
	for _, e := range parsed.Entries {
		namesSectionSize += len(e.Name) + 1
	}

	ptrTableSize := 8 * int(count)
	numsTableSize := int(count)
	dataSize := ptrTableSize + numsTableSize + namesSectionSize

	dataLump, err := b.CreatePageLump(dataSize, SlabFlagCPU, 8, nil)
	if err != nil {
		return err
	}

	numsOffset := int32(ptrTableSize)

	if err := b.AddPointer(hdrLump, 8, dataLump, 0); err != nil { // pPakNames
		return err
	}
	if err := b.AddPointer(hdrLump, 16, dataLump, numsOffset); err != nil { // pPakPatchNums
		return err
	}

	// Per-entry: a pointer to this entry's file-name string (into the same
	// lump), the patch number byte, and the name bytes themselves. The
	// pointer is self-referential (the original's pak->AddPointer(dataChunk,
	// offset) call with no separate target chunk), so fromLump and toLump
	// are the same lump here.
	nameOffset := ptrTableSize + numsTableSize
	for i, e := range parsed.Entries {
		if err := b.AddPointer(dataLump, int32(8*i), dataLump, int32(nameOffset)); err != nil {
			return err
		}
		dataLump.Data[int(numsOffset)+i] = byte(e.Version)

		copy(dataLump.Data[nameOffset:], e.Name)
		dataLump.Data[nameOffset+len(e.Name)] = 0
		nameOffset += len(e.Name) + 1
	}

	b.SetAssetHead(hdrLump)
	b.SetAssetVersion(1)
	b.SetAssetType(AssetTypePTCH)

	return b.FinishAsset()
}

// --- dtbl ----------------------------------------------------------------

type dataTableMapEntry struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// AddDataTableAssetV0 adds a "dtbl" asset in the Titanfall 2 layout. The
// header holds the column and row counts and a pointer to the column names,
// stored as null-terminated strings. Row cells are not written: the header's
// row pointer and row stride stay zero.
func AddDataTableAssetV0(b *PakBuilder, guid uint64, entry MapAssetEntry) error {
	return addDataTableAsset(b, guid, entry, 0)
}

// AddDataTableAssetV1 adds a "dtbl" asset for the Apex layout. It writes the
// same data as AddDataTableAssetV0 and differs only in the asset version (1);
// no per-column type tag is written.
func AddDataTableAssetV1(b *PakBuilder, guid uint64, entry MapAssetEntry) error {
	return addDataTableAsset(b, guid, entry, 1)
}

// dataTableHeaderSize is sizeof(DataTableHeader_t): pColumns (PagePtr_t, 8),
// pRows (PagePtr_t, 8), numColumns (u16), numRows (u16), rowStride (u32) —
// aligned to 8 => 24.
const dataTableHeaderSize = 24

func addDataTableAsset(b *PakBuilder, guid uint64, entry MapAssetEntry, version uint32) error {
	var parsed dataTableMapEntry
	if err := json.Unmarshal(entry.Raw, &parsed); err != nil {
		return fmt.Errorf("%w: dtbl %q: %v", rpakerr.ErrMissingRequiredField, entry.Path, err)
	}

	if err := b.BeginAsset(guid, entry.Path); err != nil {
		return err
	}

	hdrLump, err := b.CreatePageLump(dataTableHeaderSize, SlabFlagHead, 8, nil)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(hdrLump.Data[16:18], uint16(len(parsed.Columns)))
	binary.LittleEndian.PutUint16(hdrLump.Data[18:20], uint16(len(parsed.Rows)))

	// Column name strings, concatenated null-terminated.
	colNamesSize := 0
	for _, c := range parsed.Columns {
		colNamesSize += len(c) + 1
	}
	if colNamesSize > 0 {
		colLump, err := b.CreatePageLump(colNamesSize, SlabFlagCPU, 1, nil)
		if err != nil {
			return err
		}
		off := 0
		for _, c := range parsed.Columns {
			copy(colLump.Data[off:], c)
			off += len(c) + 1
		}
		if err := b.AddPointer(hdrLump, 0, colLump, 0); err != nil {
			return err
		}
	}

	// Row data is not written: rows only contribute to numRows, and pRows
	// and rowStride are left zero for both versions.
	_ = version

	b.SetAssetHead(hdrLump)
	b.SetAssetVersion(version)
	b.SetAssetType(AssetTypeDTBL)

	return b.FinishAsset()
}

// --- txtr ------------------------------------------------------------------

type textureMapEntry struct {
	Width            int  `json:"width"`
	Height           int  `json:"height"`
	DisableStreaming bool `json:"disableStreaming"`
}

// maxPermanentPayload caps what stays resident in the pak's own pages;
// larger payloads are pushed to a stream file, mirroring the original
// tool's MAX_PERM_MIP_SIZE split (simplified to one payload, not per-mip).
const maxPermanentPayload = 4096

// textureHeaderSize is a simplified TextureHeader_t: width/height (u16 x2),
// 4 bytes reserved, dataSize (u32), streamed flag (u32) — aligned to 8
// => 16.
const textureHeaderSize = 16

// AddTextureAsset adds a "txtr" asset. Full DDS mip-chain parsing is out of
// scope (see DESIGN.md); this implementation exercises the same
// permanent-vs-streamed split and StreamFileBuilder path as the original's
// Assets::AddTextureAsset_v8, operating on a flat payload instead of parsed
// mip levels.
func AddTextureAsset(b *PakBuilder, guid uint64, entry MapAssetEntry) error {
	var parsed textureMapEntry
	_ = json.Unmarshal(entry.Raw, &parsed)

	data, err := b.ReadAssetFile(entry.Path)
	if err != nil {
		return err
	}

	if err := b.BeginAsset(guid, entry.Path); err != nil {
		return err
	}

	hdrLump, err := b.CreatePageLump(textureHeaderSize, SlabFlagHead, 8, nil)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(hdrLump.Data[0:2], uint16(parsed.Width))
	binary.LittleEndian.PutUint16(hdrLump.Data[2:4], uint16(parsed.Height))
	binary.LittleEndian.PutUint32(hdrLump.Data[8:12], uint32(len(data)))

	streamed := !parsed.DisableStreaming && len(data) > maxPermanentPayload
	if streamed {
		binary.LittleEndian.PutUint32(hdrLump.Data[12:16], 1)

		result, err := b.AddStreamingDataEntry(data, StreamSetMandatory)
		if err != nil {
			return err
		}
		b.SetAssetStreamOffset(result, false)
	} else {
		cpuLump, err := b.CreatePageLump(len(data), SlabFlagCPU, 16, data)
		if err != nil {
			return err
		}
		b.SetAssetCPU(cpuLump)
	}

	b.SetAssetHead(hdrLump)
	b.SetAssetVersion(8)
	b.SetAssetType(AssetTypeTXTR)

	return b.FinishAsset()
}
