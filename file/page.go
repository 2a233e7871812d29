package file

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

const (
	Uint16Size   = 2
	Uint32Size   = 4
	Uint64Size   = 8
	ChecksumSize = 8
)

var ErrOutOfBounds = errors.New("offset out of bounds")

// Page is a struct to read and write fixed width integers and byte strings
// in memory (Page.Buffer). All integers are big endian.
//
// bytes and string are stored with a 2 byte length prefix
// +----------+----------------+
// | dataSize | data           |
// +----------+----------------+
// | 2 bytes  | dataSize bytes |
// +----------+----------------+
//
// Every page written to disk reserves its last 8 bytes for an xxhash64
// checksum of the preceding bytes (see StampChecksum).
type Page struct {
	Buffer []byte
	Size   int
}

func NewPageWithSize(size int) *Page {
	return &Page{
		Buffer: make([]byte, size),
		Size:   size,
	}
}

func NewPageWithBytes(bytes []byte) *Page {
	return &Page{
		Buffer: bytes,
		Size:   len(bytes),
	}
}

func (p *Page) check(offset, n int) error {
	if offset < 0 || offset+n > p.Size {
		return errors.Wrapf(ErrOutOfBounds, "offset %d len %d size %d", offset, n, p.Size)
	}
	return nil
}

func (p *Page) GetUint8(offset int) (uint8, error) {
	if err := p.check(offset, 1); err != nil {
		return 0, err
	}
	return p.Buffer[offset], nil
}

func (p *Page) SetUint8(offset int, value uint8) error {
	if err := p.check(offset, 1); err != nil {
		return err
	}
	p.Buffer[offset] = value
	return nil
}

func (p *Page) GetUint16(offset int) (uint16, error) {
	if err := p.check(offset, Uint16Size); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p.Buffer[offset:]), nil
}

func (p *Page) SetUint16(offset int, value uint16) error {
	if err := p.check(offset, Uint16Size); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(p.Buffer[offset:], value)
	return nil
}

func (p *Page) GetUint32(offset int) (uint32, error) {
	if err := p.check(offset, Uint32Size); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p.Buffer[offset:]), nil
}

func (p *Page) SetUint32(offset int, value uint32) error {
	if err := p.check(offset, Uint32Size); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(p.Buffer[offset:], value)
	return nil
}

func (p *Page) GetUint64(offset int) (uint64, error) {
	if err := p.check(offset, Uint64Size); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p.Buffer[offset:]), nil
}

func (p *Page) SetUint64(offset int, value uint64) error {
	if err := p.check(offset, Uint64Size); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(p.Buffer[offset:], value)
	return nil
}

// GetBytes returns a slice of the page buffer, not a copy.
func (p *Page) GetBytes(offset int) ([]byte, error) {
	length, err := p.GetUint16(offset)
	if err != nil {
		return nil, err
	}
	start := offset + Uint16Size
	if err := p.check(start, int(length)); err != nil {
		return nil, err
	}
	return p.Buffer[start : start+int(length)], nil
}

func (p *Page) SetBytes(offset int, b []byte) error {
	if len(b) > 0xFFFF {
		return errors.Wrapf(ErrOutOfBounds, "byte string of %d bytes", len(b))
	}
	if err := p.check(offset, MaxLen(len(b))); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(p.Buffer[offset:], uint16(len(b)))
	copy(p.Buffer[offset+Uint16Size:], b)
	return nil
}

func (p *Page) GetString(offset int) (string, error) {
	b, err := p.GetBytes(offset)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *Page) SetString(offset int, value string) error {
	return p.SetBytes(offset, []byte(value))
}

// MaxLen is the number of bytes a length-prefixed byte string of n bytes needs.
func MaxLen(n int) int {
	return Uint16Size + n
}

// Usable is the number of bytes of a page available before the checksum trailer.
func Usable(pageSize int) int {
	return pageSize - ChecksumSize
}

// StampChecksum writes the checksum of buf[:len(buf)-8] into the trailer.
func StampChecksum(buf []byte) {
	n := len(buf) - ChecksumSize
	binary.BigEndian.PutUint64(buf[n:], xxhash.Sum64(buf[:n]))
}

// VerifyChecksum reports whether the trailer matches the page contents.
func VerifyChecksum(buf []byte) bool {
	n := len(buf) - ChecksumSize
	if n < 0 {
		return false
	}
	return binary.BigEndian.Uint64(buf[n:]) == xxhash.Sum64(buf[:n])
}
