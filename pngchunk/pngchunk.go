// Package pngchunk implements a parse-in-place view over a PNG byte
// buffer: it walks the chunk stream {length:4, type:4, data:length,
// crc:4} starting right after the 8-byte signature until it has located
// IHDR and the first IDAT, instead of assuming either sits at a fixed
// offset. This replaces the original lab code's hard-coded offset-33
// IDAT lookup per the re-architecture note on raw pointer arithmetic.
package pngchunk

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/ece252labs/imaging/imgerr"
)

// Signature is the literal 8-byte PNG magic every valid stream begins
// with.
var Signature = [8]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

const (
	chunkHeaderSize = 8 // length(4) + type(4)
	chunkCRCSize    = 4
	ihdrDataSize    = 13
)

// View is a parsed-in-place look at one PNG fragment's bytes: enough to
// read its IHDR dimensions and locate its IDAT payload without copying
// the buffer.
type View struct {
	buf        []byte
	ihdrOffset int
	idatOffset int // offset of the IDAT chunk's data, or -1 if absent
	idatLen    uint32
}

// Parse validates the signature and walks the chunk stream, returning a
// View once IHDR and the first IDAT chunk have both been located. Chunk
// types other than IHDR/IDAT/IEND are skipped over, not rejected — a
// fragment format may legally carry ancillary chunks before IDAT even
// though the lab mirrors never emit them.
func Parse(buf []byte) (*View, error) {
	if len(buf) < len(Signature) || string(buf[:len(Signature)]) != string(Signature[:]) {
		return nil, imgerr.New(imgerr.MalformedPNG, "", fmt.Errorf("missing PNG signature"))
	}
	v := &View{buf: buf, idatOffset: -1}
	offset := len(Signature)
	sawIHDR := false
	for offset+chunkHeaderSize <= len(buf) {
		length := binary.BigEndian.Uint32(buf[offset : offset+4])
		typ := string(buf[offset+4 : offset+8])
		dataStart := offset + chunkHeaderSize
		dataEnd := dataStart + int(length)
		if dataEnd+chunkCRCSize > len(buf) {
			return nil, imgerr.New(imgerr.MalformedPNG, "", fmt.Errorf("chunk %q length %d overruns buffer", typ, length))
		}
		switch typ {
		case "IHDR":
			if length != ihdrDataSize {
				return nil, imgerr.New(imgerr.MalformedPNG, "", fmt.Errorf("IHDR length %d, want %d", length, ihdrDataSize))
			}
			v.ihdrOffset = dataStart
			sawIHDR = true
		case "IDAT":
			if !sawIHDR {
				return nil, imgerr.New(imgerr.MalformedPNG, "", fmt.Errorf("IDAT encountered before IHDR"))
			}
			if v.idatOffset < 0 {
				v.idatOffset = dataStart
				v.idatLen = length
			}
		case "IEND":
			if v.idatOffset >= 0 {
				return v, nil
			}
			return nil, imgerr.New(imgerr.MalformedPNG, "", fmt.Errorf("IEND reached without an IDAT chunk"))
		}
		offset = dataEnd + chunkCRCSize
	}
	if offset != len(buf) {
		return nil, imgerr.New(imgerr.MalformedPNG, "", fmt.Errorf("truncated chunk header at offset %d", offset))
	}
	if v.idatOffset >= 0 {
		return v, nil
	}
	return nil, imgerr.New(imgerr.MalformedPNG, "", fmt.Errorf("no IDAT chunk found"))
}

// IHDRWidth returns the big-endian width field of the IHDR chunk.
func (v *View) IHDRWidth() uint32 { return binary.BigEndian.Uint32(v.buf[v.ihdrOffset : v.ihdrOffset+4]) }

// IHDRHeight returns the big-endian height field of the IHDR chunk.
func (v *View) IHDRHeight() uint32 {
	return binary.BigEndian.Uint32(v.buf[v.ihdrOffset+4 : v.ihdrOffset+8])
}

// IDATLength returns the byte length of the (first) IDAT chunk's data.
func (v *View) IDATLength() uint32 { return v.idatLen }

// IDATData returns the raw (still-deflated) bytes of the first IDAT
// chunk.
func (v *View) IDATData() []byte {
	return v.buf[v.idatOffset : v.idatOffset+int(v.idatLen)]
}

// VerifyCRC recomputes the CRC-32 of a {type,data} pair found at
// chunkStart (the offset of its length field) and reports whether it
// matches the trailing 4-byte CRC stored alongside it. Parse does not
// check CRCs, and the Assembler does not call VerifyCRC on its output; a
// caller wanting strict verification calls it per chunk.
func VerifyCRC(buf []byte, chunkStart int) (bool, error) {
	if chunkStart+chunkHeaderSize > len(buf) {
		return false, fmt.Errorf("pngchunk: chunk header overruns buffer at %d", chunkStart)
	}
	length := binary.BigEndian.Uint32(buf[chunkStart : chunkStart+4])
	typeAndData := buf[chunkStart+4 : chunkStart+chunkHeaderSize+int(length)]
	crcOffset := chunkStart + chunkHeaderSize + int(length)
	if crcOffset+chunkCRCSize > len(buf) {
		return false, fmt.Errorf("pngchunk: CRC overruns buffer at %d", crcOffset)
	}
	want := binary.BigEndian.Uint32(buf[crcOffset : crcOffset+chunkCRCSize])
	got := crc32.ChecksumIEEE(typeAndData)
	return got == want, nil
}
