package rpak

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/r-ex/repak/pkg/rpak/rpakerr"
)

// PakBuilder orchestrates one build: it owns the PageBuilder and
// StreamFileBuilder, tracks the in-flight asset, and in finish assembles
// and writes the complete pak file (spec §4.5).
type PakBuilder struct {
	logger hclog.Logger

	version   uint16
	assetsDir string
	outputDir string

	pages  *PageBuilder
	stream *StreamFileBuilder

	assets    []*AssetRecord
	guidIndex map[uint64]int

	pointers        []PagePtr
	guidRefs        []GuidRef
	dependentsTable []uint32

	current      *AssetRecord
	currentUses  []uint64
	assetInFlight bool

	warnings []string
}

// NewPakBuilder constructs a builder for the given version (7 or 8) rooted
// at assetsDir for resolving adder-relative paths.
func NewPakBuilder(logger hclog.Logger, version uint16, assetsDir, outputDir string) (*PakBuilder, error) {
	if version != 7 && version != 8 {
		return nil, fmt.Errorf("%w: got %d", rpakerr.ErrVersionUnsupported, version)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PakBuilder{
		logger:    logger,
		version:   version,
		assetsDir: assetsDir,
		outputDir: outputDir,
		pages:     NewPageBuilder(logger.Named("pages")),
		stream:    NewStreamFileBuilder(logger.Named("stream")),
		guidIndex: make(map[uint64]int),
	}, nil
}

// Warn records a non-fatal diagnostic (spec §7: "Warnings are non-fatal").
func (b *PakBuilder) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.warnings = append(b.warnings, msg)
	b.logger.Warn(msg)
}

func (b *PakBuilder) Warnings() []string { return b.warnings }

// ReadAssetFile reads a file relative to the configured assets directory,
// the way every adder resolves its source payload.
func (b *PakBuilder) ReadAssetFile(relPath string) ([]byte, error) {
	full := filepath.Join(b.assetsDir, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("%w: reading asset source %q: %v", rpakerr.ErrFileIO, full, err)
	}
	return data, nil
}

// BeginAsset starts a new asset record. Only one asset may be in flight at
// a time, and guids must be unique within the pak (spec §4.5: "begin_asset").
func (b *PakBuilder) BeginAsset(guid uint64, name string) error {
	if b.assetInFlight {
		return rpakerr.ErrAssetInFlight
	}
	if _, exists := b.guidIndex[guid]; exists {
		return fmt.Errorf("%w: %q (%#x)", rpakerr.ErrDuplicateGUID, name, guid)
	}

	b.current = &AssetRecord{
		Guid:                  guid,
		Name:                  name,
		HeadPtr:               NullPagePtr,
		CPUPtr:                NullPagePtr,
		StreamOffsetMandatory: NoStream,
		StreamOffsetOptional:  NoStream,
		InternalDepCount:      1,
	}
	b.currentUses = nil
	b.assetInFlight = true
	return nil
}

func (b *PakBuilder) requireInFlight() error {
	if !b.assetInFlight {
		return rpakerr.ErrNoAssetInFlight
	}
	return nil
}

// CreatePageLump delegates to the PageBuilder (spec §4.5, §4.2).
func (b *PakBuilder) CreatePageLump(size int, flags int32, align int32, data []byte) (*Lump, error) {
	if err := b.requireInFlight(); err != nil {
		return nil, err
	}
	return b.pages.CreatePageLump(size, flags, align, data)
}

// AddPointer writes the relocatable PagePtr for (toLump, toOffset) into
// fromLump at fromOffset (as two little-endian int32 fields: index, offset)
// and registers the location so the runtime knows to rewrite it
// (spec §3: "page pointer (descriptor)").
func (b *PakBuilder) AddPointer(fromLump *Lump, fromOffset int32, toLump *Lump, toOffset int32) error {
	if err := b.requireInFlight(); err != nil {
		return err
	}

	target := toLump.PagePtr.Shifted(toOffset)
	binary.LittleEndian.PutUint32(fromLump.Data[fromOffset:], uint32(target.Index))
	binary.LittleEndian.PutUint32(fromLump.Data[fromOffset+4:], uint32(target.Offset))

	loc := fromLump.PagePtr.Shifted(fromOffset)
	b.pointers = append(b.pointers, loc)
	return nil
}

// RegisterGuidRefAtOffset writes guid as a little-endian u64 at offset in
// lump and records that the bytes there must be resolved to a pointer by
// the runtime at load time (spec §3: "GUID-reference"). It also records
// that the in-flight asset uses guid, for later internal-dependency-count
// derivation.
func (b *PakBuilder) RegisterGuidRefAtOffset(lump *Lump, offset int32, guid uint64) error {
	if err := b.requireInFlight(); err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(lump.Data[offset:], guid)

	loc := lump.PagePtr.Shifted(offset)
	b.guidRefs = append(b.guidRefs, GuidRef{PagePtr: loc, Guid: guid})
	b.currentUses = append(b.currentUses, guid)
	return nil
}

// AddStreamingDataEntry writes data to the requested stream set via the
// StreamFileBuilder, deduplicating against the stream cache (spec §4.5).
func (b *PakBuilder) AddStreamingDataEntry(data []byte, set StreamSet) (AddResult, error) {
	if err := b.requireInFlight(); err != nil {
		return AddResult{}, err
	}
	return b.stream.AddEntry(data, set)
}

// SetAssetHead records the in-flight asset's header lump.
func (b *PakBuilder) SetAssetHead(lump *Lump) {
	b.current.HeadPtr = lump.PagePtr
	b.current.HeadSize = uint32(lump.Size)
}

// SetAssetCPU records the in-flight asset's bulk CPU-data lump.
func (b *PakBuilder) SetAssetCPU(lump *Lump) {
	b.current.CPUPtr = lump.PagePtr
}

// SetAssetStreamOffset packs result's (offset, file index) into the
// in-flight asset's mandatory or optional stream-offset field
// (spec §3: "packed 64-bit fields").
func (b *PakBuilder) SetAssetStreamOffset(result AddResult, optional bool) {
	packed := packStreamOffset(result.DataOffset, result.PathIndex)
	if optional {
		b.current.StreamOffsetOptional = packed
	} else {
		b.current.StreamOffsetMandatory = packed
	}
}

func (b *PakBuilder) SetAssetVersion(v uint32) { b.current.Version = v }
func (b *PakBuilder) SetAssetType(t FourCC)     { b.current.Type = t }

// FinishAsset finalizes the in-flight asset: sets page_end to the pak's
// current page count (spec §8 property 8), snapshots its uses list, and
// appends it to the asset table.
func (b *PakBuilder) FinishAsset() error {
	if err := b.requireInFlight(); err != nil {
		return err
	}

	b.current.PageEnd = uint16(b.pages.PageCount())
	b.current.uses = make([]GuidRef, 0, len(b.currentUses))
	for _, g := range b.currentUses {
		b.current.uses = append(b.current.uses, GuidRef{Guid: g})
	}

	idx := len(b.assets)
	b.assets = append(b.assets, b.current)
	b.guidIndex[b.current.Guid] = idx

	b.current = nil
	b.currentUses = nil
	b.assetInFlight = false
	return nil
}

// generateInternalDependencies computes, for every asset A, the set of
// asset indices that use A's guid (A.dependents) and sets
// A.internal_dep_count = 1 + len(A.dependents) (spec §4.5, §8 property 7).
func (b *PakBuilder) generateInternalDependencies() {
	dependentsOf := make(map[uint64][]uint32, len(b.assets))

	for bi, asset := range b.assets {
		for _, use := range asset.uses {
			if _, ok := b.guidIndex[use.Guid]; !ok {
				continue // external reference outside this pak
			}
			dependentsOf[use.Guid] = append(dependentsOf[use.Guid], uint32(bi))
		}
	}

	for _, asset := range b.assets {
		deps := dependentsOf[asset.Guid]
		asset.dependents = deps
		asset.InternalDepCount = uint16(1 + len(deps))
	}
}

// assembleDescriptorTables sorts the page-pointer and guid-reference tables
// ascending by packed (index,offset) (spec §8 properties 5, 6) and assigns
// each asset's uses_start/uses_count and dependents_start/dependents_count
// into the flattened global arrays.
//
// Because assets are built strictly one at a time and lump allocation only
// ever grows page offsets forward, one asset's guid-ref entries are always
// numerically greater than an earlier asset's; sorting the global table
// therefore cannot interleave entries across asset boundaries, so each
// asset's contiguous range of guid refs survives the sort intact (see
// DESIGN.md).
func (b *PakBuilder) assembleDescriptorTables() {
	sort.Slice(b.pointers, func(i, j int) bool {
		return comparePagePtr(b.pointers[i], b.pointers[j]) < 0
	})
	sort.Slice(b.guidRefs, func(i, j int) bool {
		return comparePagePtr(b.guidRefs[i].PagePtr, b.guidRefs[j].PagePtr) < 0
	})

	var dependentsTable []uint32
	uses := uint32(0)

	for _, asset := range b.assets {
		asset.UsesStart = uses
		asset.UsesCount = uint32(len(asset.uses))
		uses += asset.UsesCount

		asset.DependentsStart = uint32(len(dependentsTable))
		asset.DependentsCount = uint32(len(asset.dependents))
		dependentsTable = append(dependentsTable, asset.dependents...)
	}

	b.dependentsTable = dependentsTable
}
