package rpak

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

// BuildResult summarizes a completed build (spec §4.5, §7: warnings are
// non-fatal and collected rather than aborting the build).
type BuildResult struct {
	OutputPath string
	AssetCount int
	Warnings   []string
}

// BuildFromMap runs a complete build from a map file: it dispatches every
// listed asset to its adder, computes dependency metadata, and writes the
// resulting pak (plus any stream files and a refreshed stream cache) to
// disk (spec §2: "Build-time data flow").
func BuildFromMap(mapPath string, logger hclog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	m, err := LoadMapFile(mapPath)
	if err != nil {
		return nil, err
	}

	mapDir := filepath.Dir(mapPath)
	assetsDir := m.AssetsDir
	if assetsDir == "" {
		assetsDir = mapDir
	} else if !filepath.IsAbs(assetsDir) {
		assetsDir = filepath.Join(mapDir, assetsDir)
	}
	outputDir := m.OutputDir
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(mapDir, outputDir)
	}

	version := uint16(m.Version)

	b, err := NewPakBuilder(logger.Named("pakbuilder"), version, assetsDir, outputDir)
	if err != nil {
		return nil, err
	}

	mandatoryPath := resolveStreamPath(outputDir, m.Name, m.StreamFileMandatory, m.StarpakPath, false)
	optionalPath := resolveStreamPath(outputDir, m.Name, m.StreamFileOptional, "", true)

	streamCachePath := m.StreamCache
	if streamCachePath != "" && !filepath.IsAbs(streamCachePath) {
		streamCachePath = filepath.Join(mapDir, streamCachePath)
	}

	if err := b.stream.Init(mandatoryPath, optionalPath, streamCachePath); err != nil {
		return nil, err
	}

	for _, entry := range m.Files {
		adder, err := LookupAdder(entry.Type, version)
		if err != nil {
			return nil, err
		}
		guid := GetAssetGUIDFromString(entry.Path, false)
		if err := adder(b, guid, entry); err != nil {
			return nil, err
		}
	}

	outputPath := filepath.Join(outputDir, pakFileName(m.Name, version))
	if err := b.finish(outputPath, streamCachePath); err != nil {
		return nil, err
	}

	return &BuildResult{
		OutputPath: outputPath,
		AssetCount: len(b.assets),
		Warnings:   b.warnings,
	}, nil
}

func pakFileName(name string, version uint16) string {
	if name == "" {
		name = "pak"
	}
	return fmt.Sprintf("%s.rpak", name)
}

func resolveStreamPath(outputDir, mapName, explicit, legacy string, optional bool) string {
	path := explicit
	if path == "" {
		path = legacy
	}
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(outputDir, path)
}

// finish computes dependency metadata, pads slabs/pages, sorts descriptor
// tables, and writes the complete pak file plus stream-file trailers and a
// refreshed stream cache (spec §4.5: "finish_build" ordering).
func (b *PakBuilder) finish(outputPath, streamCachePath string) error {
	if b.assetInFlight {
		return fmt.Errorf("finish called with an asset still in flight")
	}

	b.generateInternalDependencies()
	b.pages.PadSlabsAndPages()
	b.assembleDescriptorTables()

	out, err := OpenWrite(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	hdr := b.buildHeader()

	// Write a placeholder header first; sizes/offsets requiring the final
	// file length are only known after everything else is written
	// (spec §4.5: "header placeholder-then-rewrite").
	if err := hdr.Write(out); err != nil {
		return err
	}

	mandatoryLen, optionalLen, err := b.writeStreamPaths(out)
	if err != nil {
		return err
	}
	hdr.StarpakPathsSize = uint16(mandatoryLen)
	if b.version == 8 {
		hdr.OptStarpakPathsSize = uint16(optionalLen)
	}

	if err := b.pages.WriteSlabHeaders(out); err != nil {
		return err
	}
	if err := b.pages.WritePageHeaders(out); err != nil {
		return err
	}

	for _, p := range b.pointers {
		if err := writePagePtr(out, p); err != nil {
			return err
		}
	}

	for _, asset := range b.assets {
		if err := WriteAssetRecord(out, asset, b.version); err != nil {
			return err
		}
	}

	for _, g := range b.guidRefs {
		if err := writePagePtr(out, g.PagePtr); err != nil {
			return err
		}
	}

	for _, d := range b.dependentsTable {
		if err := out.Write(d); err != nil {
			return err
		}
	}

	if err := b.pages.WritePageData(out); err != nil {
		return err
	}

	finalSize := out.TellPut()
	if err := out.Truncate(finalSize); err != nil {
		return err
	}

	hdr.CompressedSize = uint64(finalSize)
	hdr.DecompressedSize = uint64(finalSize)
	hdr.SlabCount = uint16(b.pages.SlabCount())
	hdr.PageCount = uint16(b.pages.PageCount())
	hdr.PointerCount = uint32(len(b.pointers))
	hdr.AssetCount = uint32(len(b.assets))
	hdr.GuidRefCount = uint32(len(b.guidRefs))
	hdr.DependentsCount = uint32(len(b.dependentsTable))

	if err := out.SeekPut(0, SeekBeg); err != nil {
		return err
	}
	if err := hdr.Write(out); err != nil {
		return err
	}

	if err := b.stream.Shutdown(streamCachePath); err != nil {
		return err
	}

	return nil
}

func (b *PakBuilder) buildHeader() *Header {
	return &Header{
		Version:    b.version,
		PatchIndex: 0,
	}
}

func (b *PakBuilder) writeStreamPaths(out *BinaryIO) (mandatoryLen, optionalLen int, err error) {
	if b.stream.Used(StreamSetMandatory) {
		p := b.stream.RelativePath(StreamSetMandatory)
		if err = out.WriteString(p); err != nil {
			return
		}
		mandatoryLen = len(p) + 1
	}

	if b.version == 8 && b.stream.Used(StreamSetOptional) {
		p := b.stream.RelativePath(StreamSetOptional)
		if err = out.WriteString(p); err != nil {
			return
		}
		optionalLen = len(p) + 1
	}

	combined := mandatoryLen + optionalLen
	aligned := int(alignUp(int32(combined), 8))
	padBytes := aligned - combined
	if padBytes > 0 {
		if err = out.Pad(padBytes); err != nil {
			return
		}
		if optionalLen != 0 {
			optionalLen += padBytes
		} else {
			mandatoryLen += padBytes
		}
	}

	return
}

func writePagePtr(out *BinaryIO, p PagePtr) error {
	if err := out.Write(uint32(p.Index)); err != nil {
		return err
	}
	return out.Write(uint32(p.Offset))
}
