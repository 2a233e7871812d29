package wal

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
)

/*
The log file starts with a 40 byte header followed by frames.

+=======+=========+==========+==========+======+=========+==========+
| magic | version | pageSize | reserved | salt | baseSeq | checksum |
+=======+=========+==========+==========+======+=========+==========+
| 4     | 4       | 4        | 4        | 8    | 8       | 8        |
+-------+---------+----------+----------+------+---------+----------+

checksum is xxhash64 of the first 32 bytes. salt must equal the salt stored
in the database header, so a log left behind by another database is ignored.

Each frame is a 24 byte frame header followed by one full page image.

+========+============+=====+==========+===========+
| pageID | commitSize | seq | checksum | page      |
+========+============+=====+==========+===========+
| 4      | 4          | 8   | 8        | pageSize  |
+--------+------------+-----+----------+-----------+

commitSize is 0 for every frame of a transaction except the last one, where it
holds the number of pages in the database after the commit.
checksum = xxhash64(prevChecksum | pageID | commitSize | seq | page). The chain
starts with the header checksum.
*/

const (
	HeaderSize      = 40
	FrameHeaderSize = 24

	logMagic   uint32 = 0x6b57414c
	logVersion uint32 = 1
)

type header struct {
	pageSize uint32
	salt     uint64
	baseSeq  uint64
	checksum uint64
}

func newHeader(pageSize int, salt, baseSeq uint64) header {
	h := header{pageSize: uint32(pageSize), salt: salt, baseSeq: baseSeq}
	h.checksum = xxhash.Sum64(h.encode()[:32])
	return h
}

func (h header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:], logMagic)
	binary.BigEndian.PutUint32(buf[4:], logVersion)
	binary.BigEndian.PutUint32(buf[8:], h.pageSize)
	binary.BigEndian.PutUint64(buf[16:], h.salt)
	binary.BigEndian.PutUint64(buf[24:], h.baseSeq)
	binary.BigEndian.PutUint64(buf[32:], h.checksum)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < HeaderSize {
		return header{}, dberr.Corruptf("log header is %d bytes", len(buf))
	}
	if m := binary.BigEndian.Uint32(buf[0:]); m != logMagic {
		return header{}, dberr.Corruptf("bad log magic %#x", m)
	}
	if v := binary.BigEndian.Uint32(buf[4:]); v != logVersion {
		return header{}, dberr.Corruptf("unsupported log version %d", v)
	}
	h := header{
		pageSize: binary.BigEndian.Uint32(buf[8:]),
		salt:     binary.BigEndian.Uint64(buf[16:]),
		baseSeq:  binary.BigEndian.Uint64(buf[24:]),
		checksum: binary.BigEndian.Uint64(buf[32:]),
	}
	if sum := xxhash.Sum64(buf[:32]); sum != h.checksum {
		return header{}, dberr.Corruptf("log header checksum %#x, want %#x", sum, h.checksum)
	}
	return h, nil
}

// Frame is one page image stored in the log.
type Frame struct {
	PageID     file.PageID
	CommitSize uint32
	Seq        uint64
	Checksum   uint64
	Data       []byte
}

// IsCommit reports whether the frame is the last frame of a transaction.
func (f Frame) IsCommit() bool {
	return f.CommitSize != 0
}

func frameChecksum(prev uint64, pageID file.PageID, commitSize uint32, seq uint64, data []byte) uint64 {
	var fields [24]byte
	binary.BigEndian.PutUint64(fields[0:], prev)
	binary.BigEndian.PutUint32(fields[8:], uint32(pageID))
	binary.BigEndian.PutUint32(fields[12:], commitSize)
	binary.BigEndian.PutUint64(fields[16:], seq)

	d := xxhash.New()
	d.Write(fields[:])
	d.Write(data)
	return d.Sum64()
}

// encodeFrame writes the frame into buf, which must be FrameHeaderSize+len(data)
// long, and returns the frame checksum.
func encodeFrame(buf []byte, prev uint64, pageID file.PageID, commitSize uint32, seq uint64, data []byte) uint64 {
	sum := frameChecksum(prev, pageID, commitSize, seq, data)
	binary.BigEndian.PutUint32(buf[0:], uint32(pageID))
	binary.BigEndian.PutUint32(buf[4:], commitSize)
	binary.BigEndian.PutUint64(buf[8:], seq)
	binary.BigEndian.PutUint64(buf[16:], sum)
	copy(buf[FrameHeaderSize:], data)
	return sum
}

// decodeFrame parses buf without verifying the chain. Data aliases buf.
func decodeFrame(buf []byte) Frame {
	return Frame{
		PageID:     file.PageID(binary.BigEndian.Uint32(buf[0:])),
		CommitSize: binary.BigEndian.Uint32(buf[4:]),
		Seq:        binary.BigEndian.Uint64(buf[8:]),
		Checksum:   binary.BigEndian.Uint64(buf[16:]),
		Data:       buf[FrameHeaderSize:],
	}
}

// verify reports whether the frame continues the chain ending in prev.
func (f Frame) verify(prev uint64) bool {
	return frameChecksum(prev, f.PageID, f.CommitSize, f.Seq, f.Data) == f.Checksum
}
