// Package pngassemble builds a single vertically-stacked PNG out of an
// ordered sequence of already-inflated strip row buffers: concatenate
// rows, deflate once, and emit a three-chunk PNG (IHDR, IDAT, IEND) with
// a correct CRC-32 on each chunk.
package pngassemble

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/ece252labs/imaging/imgerr"
	"github.com/ece252labs/imaging/pngchunk"
)

// Strip is one decoded, already-inflated horizontal slice ready to be
// stacked: its filtered scanlines in row-major order.
type Strip struct {
	Index  int
	Height uint32
	Rows   []byte
}

// Assemble concatenates strips in index order and produces the bytes of
// one well-formed PNG: signature, IHDR(width,totalHeight,depth=8,
// colorType=6,filter=0,interlace=0), IDAT(zlib-deflated rows), IEND.
//
// Assemble does not validate that strips is gap-free or sorted; callers
// (the Strip/BP engines) are responsible for handing it strips already
// placed at their correct index in order 0..N-1.
func Assemble(width uint32, strips []Strip) ([]byte, error) {
	var totalHeight uint32
	rowSize := 0
	for _, s := range strips {
		totalHeight += s.Height
		rowSize += len(s.Rows)
	}
	rows := make([]byte, 0, rowSize)
	for _, s := range strips {
		rows = append(rows, s.Rows...)
	}

	deflated, err := deflate(rows)
	if err != nil {
		return nil, imgerr.New(imgerr.Inflate, "", err)
	}

	var out bytes.Buffer
	out.Write(pngchunk.Signature[:])

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], totalHeight)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // color type: RGBA
	ihdr[10] = 0
	ihdr[11] = 0
	ihdr[12] = 0
	writeChunk(&out, "IHDR", ihdr)
	writeChunk(&out, "IDAT", deflated)
	writeChunk(&out, "IEND", nil)

	return out.Bytes(), nil
}

// writeChunk appends one {length, type, data, crc} chunk to out.
func writeChunk(out *bytes.Buffer, typ string, data []byte) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	out.Write(length)

	typeAndData := make([]byte, 0, 4+len(data))
	typeAndData = append(typeAndData, []byte(typ)...)
	typeAndData = append(typeAndData, data...)
	out.Write(typeAndData)

	crc := crc32.ChecksumIEEE(typeAndData)
	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, crc)
	out.Write(crcBytes)
}

// Inflate decompresses a zlib-wrapped DEFLATE stream, the same wire
// format PNG IDAT chunks carry.
func Inflate(src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, imgerr.New(imgerr.Inflate, "", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, imgerr.New(imgerr.Inflate, "", err)
	}
	return out, nil
}

// deflate zlib-wraps rows at the default compression level, matching
// the original lab's mem_def(..., Z_DEFAULT_COMPRESSION) call.
func deflate(rows []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(rows); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
