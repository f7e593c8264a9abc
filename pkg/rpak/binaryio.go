package rpak

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SeekWhence mirrors the beg/cur/end seek origins BinaryIO exposes.
type SeekWhence int

const (
	SeekBeg SeekWhence = io.SeekStart
	SeekCur SeekWhence = io.SeekCurrent
	SeekEnd SeekWhence = io.SeekEnd
)

// BinaryIO is a little-endian file stream supporting the
// read/write/seek/pad operations the pak builder's components are built
// on (spec §4.6). It does no buffering of its own: every read and write
// goes straight to the underlying *os.File. A single BinaryIO can be opened for either reading or
// writing; it is not simultaneously read/write, matching the original
// tool's split ofstream/ifstream.
type BinaryIO struct {
	file *os.File
	path string

	writing bool
	w       io.WriteSeeker
	r       io.ReadSeeker

	// putPos/size track the write cursor independently of the OS file
	// position: seeking past the current end of file must not grow the
	// reported size until a write actually lands bytes there.
	putPos int64
	size   int64

	zero []byte
}

// OpenWrite creates (truncating) path for writing.
func OpenWrite(path string) (*BinaryIO, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %q for write: %w", path, err)
	}
	return &BinaryIO{file: f, path: path, writing: true, w: f}, nil
}

// OpenRead opens path for reading.
func OpenRead(path string) (*BinaryIO, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q for read: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &BinaryIO{file: f, path: path, writing: false, r: f, size: st.Size()}, nil
}

func (b *BinaryIO) Close() error {
	if b.file != nil {
		return b.file.Close()
	}
	return nil
}

func (b *BinaryIO) Path() string { return b.path }

// Size returns the number of bytes that have actually been written so far
// (write mode) or the file size (read mode).
func (b *BinaryIO) Size() int64 { return b.size }

func (b *BinaryIO) growTo(end int64) {
	if end > b.size {
		b.size = end
	}
}

// Write writes an arbitrary little-endian fixed-width value (uint8/16/32/64,
// int32/64, or a []byte) at the current write position.
func (b *BinaryIO) Write(v any) error {
	switch val := v.(type) {
	case []byte:
		return b.WriteBytes(val)
	case uint8:
		return b.WriteBytes([]byte{val})
	case uint16:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, val)
		return b.WriteBytes(buf)
	case int16:
		return b.Write(uint16(val))
	case uint32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, val)
		return b.WriteBytes(buf)
	case int32:
		return b.Write(uint32(val))
	case uint64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, val)
		return b.WriteBytes(buf)
	case int64:
		return b.Write(uint64(val))
	default:
		return fmt.Errorf("binaryio: unsupported write type %T", v)
	}
}

// WriteBytes writes raw bytes at the current write position.
func (b *BinaryIO) WriteBytes(p []byte) error {
	if !b.writing {
		return fmt.Errorf("binaryio: %q is not open for writing", b.path)
	}
	n, err := b.w.Write(p)
	if err != nil {
		return fmt.Errorf("binaryio: write %q: %w", b.path, err)
	}
	b.putPos += int64(n)
	b.growTo(b.putPos)
	return nil
}

// WriteString writes a null-terminated string.
func (b *BinaryIO) WriteString(s string) error {
	return b.WriteBytes(append([]byte(s), 0))
}

// Pad writes n zero bytes using a reusable internal zero buffer.
func (b *BinaryIO) Pad(n int) error {
	if n <= 0 {
		return nil
	}
	if len(b.zero) < n {
		b.zero = make([]byte, n)
	}
	return b.WriteBytes(b.zero[:n])
}

// TellPut returns the current write position.
func (b *BinaryIO) TellPut() int64 { return b.putPos }

// SeekPut moves the write cursor. Seeking past the current end of file
// defers size accounting until the next write actually lands bytes there;
// writing within an already-written region does not shrink the reported
// size.
func (b *BinaryIO) SeekPut(offset int64, whence SeekWhence) error {
	var base int64
	switch whence {
	case SeekBeg:
		base = 0
	case SeekCur:
		base = b.putPos
	case SeekEnd:
		base = b.size
	}
	target := base + offset

	pos, err := b.w.Seek(target, io.SeekStart)
	if err != nil {
		return fmt.Errorf("binaryio: seek %q: %w", b.path, err)
	}
	b.putPos = pos
	return nil
}

// ReadBytes reads exactly len(p) bytes.
func (b *BinaryIO) ReadBytes(p []byte) error {
	if b.writing {
		return fmt.Errorf("binaryio: %q is not open for reading", b.path)
	}
	_, err := io.ReadFull(b.r, p)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrTruncatedRead, b.path, err)
	}
	return nil
}

func (b *BinaryIO) ReadUint8() (uint8, error) {
	var buf [1]byte
	if err := b.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *BinaryIO) ReadUint16() (uint16, error) {
	var buf [2]byte
	if err := b.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (b *BinaryIO) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := b.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (b *BinaryIO) ReadUint64() (uint64, error) {
	var buf [8]byte
	if err := b.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadString reads a null-terminated string.
func (b *BinaryIO) ReadString() (string, error) {
	var out []byte
	var buf [1]byte
	for {
		if err := b.ReadBytes(buf[:]); err != nil {
			return "", err
		}
		if buf[0] == 0 {
			break
		}
		out = append(out, buf[0])
	}
	return string(out), nil
}

// TellGet returns the current read position.
func (b *BinaryIO) TellGet() (int64, error) {
	return b.r.Seek(0, io.SeekCurrent)
}

// SeekGet moves the read cursor.
func (b *BinaryIO) SeekGet(offset int64, whence SeekWhence) error {
	_, err := b.r.Seek(offset, int(whence))
	if err != nil {
		return fmt.Errorf("binaryio: seek %q: %w", b.path, err)
	}
	return nil
}

// Truncate grows or shrinks the underlying file to exactly size bytes,
// zero-filling any new region. Used to materialize trailing padding lumps
// that were only ever seeked past, never written.
func (b *BinaryIO) Truncate(size int64) error {
	if b.file == nil {
		return fmt.Errorf("binaryio: %q has no backing file", b.path)
	}
	if err := b.file.Truncate(size); err != nil {
		return fmt.Errorf("binaryio: truncate %q: %w", b.path, err)
	}
	b.growTo(size)
	return nil
}

// ErrTruncatedRead is returned when a read runs off the end of the stream.
var ErrTruncatedRead = fmt.Errorf("binaryio: truncated read")
