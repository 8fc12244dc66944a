package pngassemble

import (
	"bytes"
	"testing"

	"github.com/ece252labs/imaging/pngchunk"
)

func TestAssembleRoundTrip(t *testing.T) {
	width := uint32(4)
	rowLen := int(width)*4 + 1
	strips := []Strip{
		{Index: 0, Height: 2, Rows: bytes.Repeat([]byte{0xAA}, 2*rowLen)},
		{Index: 1, Height: 3, Rows: bytes.Repeat([]byte{0xBB}, 3*rowLen)},
	}
	wantRows := append(append([]byte{}, strips[0].Rows...), strips[1].Rows...)

	out, err := Assemble(width, strips)
	if err != nil {
		t.Fatalf("Assemble: unexpected error: %v", err)
	}

	view, err := pngchunk.Parse(out)
	if err != nil {
		t.Fatalf("pngchunk.Parse(assembled): unexpected error: %v", err)
	}
	if view.IHDRWidth() != width {
		t.Errorf("Assemble: width = %d, want %d", view.IHDRWidth(), width)
	}
	if view.IHDRHeight() != 5 {
		t.Errorf("Assemble: height = %d, want 5", view.IHDRHeight())
	}

	gotRows, err := Inflate(view.IDATData())
	if err != nil {
		t.Fatalf("Inflate: unexpected error: %v", err)
	}
	if !bytes.Equal(gotRows, wantRows) {
		t.Errorf("Assemble round-trip: rows mismatch")
	}
}

func TestAssembleOrderIndependentOfCaller(t *testing.T) {
	// assemble(strip_0, strip_1) must equal the concatenation of the two
	// decoded row buffers regardless of which order the engine happened
	// to fill the slots in, as long as the slice itself is index-ordered.
	width := uint32(2)
	rowLen := int(width)*4 + 1
	a := Strip{Index: 0, Height: 1, Rows: bytes.Repeat([]byte{0x01}, rowLen)}
	b := Strip{Index: 1, Height: 1, Rows: bytes.Repeat([]byte{0x02}, rowLen)}

	out1, _ := Assemble(width, []Strip{a, b})
	slots := make([]Strip, 2)
	slots[1] = b // fill the slots in reverse order
	slots[0] = a
	out2, _ := Assemble(width, slots)
	if !bytes.Equal(out1, out2) {
		t.Errorf("Assemble: expected identical output regardless of slot fill order")
	}
}

func TestAssembleEmptyIEND(t *testing.T) {
	out, err := Assemble(1, nil)
	if err != nil {
		t.Fatalf("Assemble: unexpected error on empty input: %v", err)
	}
	view, err := pngchunk.Parse(out)
	if err != nil {
		t.Fatalf("pngchunk.Parse(empty assembled): unexpected error: %v", err)
	}
	if view.IHDRHeight() != 0 {
		t.Errorf("Assemble: expected height 0 for no strips, got %d", view.IHDRHeight())
	}
}
