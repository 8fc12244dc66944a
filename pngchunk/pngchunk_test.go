package pngchunk

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
)

// buildChunk returns {length, type, data, crc} for one chunk.
func buildChunk(typ string, data []byte) []byte {
	out := make([]byte, 0, chunkHeaderSize+len(data)+chunkCRCSize)
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	out = append(out, length...)
	out = append(out, []byte(typ)...)
	out = append(out, data...)
	crc := make([]byte, 4)
	binary.BigEndian.PutUint32(crc, crc32.ChecksumIEEE(append([]byte(typ), data...)))
	out = append(out, crc...)
	return out
}

func buildPNG(width, height uint32, idat []byte, withIEND bool) []byte {
	buf := append([]byte{}, Signature[:]...)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8], ihdr[9], ihdr[10], ihdr[11], ihdr[12] = 8, 6, 0, 0, 0
	buf = append(buf, buildChunk("IHDR", ihdr)...)
	buf = append(buf, buildChunk("IDAT", idat)...)
	if withIEND {
		buf = append(buf, buildChunk("IEND", nil)...)
	}
	return buf
}

func TestParseWellFormed(t *testing.T) {
	idat := []byte{1, 2, 3, 4, 5}
	buf := buildPNG(400, 6, idat, true)
	view, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	if view.IHDRWidth() != 400 || view.IHDRHeight() != 6 {
		t.Errorf("Parse: got width=%d height=%d", view.IHDRWidth(), view.IHDRHeight())
	}
	if view.IDATLength() != uint32(len(idat)) {
		t.Errorf("Parse: got IDAT length %d, want %d", view.IDATLength(), len(idat))
	}
	if string(view.IDATData()) != string(idat) {
		t.Errorf("Parse: got IDAT data %v, want %v", view.IDATData(), idat)
	}
}

func TestParseMissingSignature(t *testing.T) {
	buf := buildPNG(1, 1, []byte{0}, true)
	buf[0] = 0x00
	if _, err := Parse(buf); err == nil {
		t.Fatalf("Parse: expected an error for a corrupted signature")
	}
}

func TestParseMissingIDAT(t *testing.T) {
	buf := append([]byte{}, Signature[:]...)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 10)
	binary.BigEndian.PutUint32(ihdr[4:8], 10)
	buf = append(buf, buildChunk("IHDR", ihdr)...)
	buf = append(buf, buildChunk("IEND", nil)...)
	if _, err := Parse(buf); err == nil {
		t.Fatalf("Parse: expected an error when no IDAT chunk is present")
	}
}

func TestParseIDATBeforeIHDR(t *testing.T) {
	buf := append([]byte{}, Signature[:]...)
	buf = append(buf, buildChunk("IDAT", []byte{1, 2, 3})...)
	if _, err := Parse(buf); err == nil {
		t.Fatalf("Parse: expected an error when IDAT precedes IHDR")
	}
}

func TestParseTruncatedChunk(t *testing.T) {
	buf := buildPNG(400, 6, []byte{1, 2, 3, 4, 5}, true)
	truncated := buf[:len(buf)-10]
	if _, err := Parse(truncated); err == nil {
		t.Fatalf("Parse: expected an error for a truncated chunk stream")
	}
}

func TestVerifyCRC(t *testing.T) {
	buf := buildPNG(400, 6, []byte{1, 2, 3, 4, 5}, true)
	ok, err := VerifyCRC(buf, len(Signature))
	if err != nil {
		t.Fatalf("VerifyCRC: unexpected error: %v", err)
	}
	if !ok {
		t.Errorf("VerifyCRC: expected a valid IHDR chunk to verify")
	}
	buf[len(Signature)+chunkHeaderSize] ^= 0xFF // corrupt one IHDR data byte
	ok, err = VerifyCRC(buf, len(Signature))
	if err != nil {
		t.Fatalf("VerifyCRC: unexpected error: %v", err)
	}
	if ok {
		t.Errorf("VerifyCRC: expected a corrupted chunk to fail verification")
	}
}
