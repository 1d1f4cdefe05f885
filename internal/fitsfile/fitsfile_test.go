package fitsfile

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/pixport/internal/domain"
)

var pixelLayout = Layout{
	{Name: "RAW_CNTS", Format: "J", Unit: "count"},
	{Name: "CAL_PIX", Format: "E", Unit: "e-"},
	{Name: "CAL_ERR", Format: "E", Unit: "e-"},
}

func TestCard_Encode(t *testing.T) {
	tests := []struct {
		card Card
		want string
	}{
		{Card{Key: "SIMPLE", Value: true}, "SIMPLE  =                    T"},
		{Card{Key: "NAXIS2", Value: 42}, "NAXIS2  =                   42"},
		{Card{Key: "EXTNAME", Value: "MOD.OUT 2.1"}, "EXTNAME = 'MOD.OUT 2.1'"},
		{Card{Key: "OBJECT", Value: "a"}, "OBJECT  = 'a       '"},
		{Card{Key: "NOTE", Value: "it's"}, "NOTE    = 'it''s    '"},
		{Card{Key: "END"}, "END"},
	}
	for _, tt := range tests {
		b, err := tt.card.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v): %v", tt.card, err)
		}
		if len(b) != CardSize {
			t.Errorf("Encode(%+v) length = %d", tt.card, len(b))
		}
		if got := strings.TrimRight(string(b), " "); got != tt.want {
			t.Errorf("Encode(%+v) = %q, want %q", tt.card, got, tt.want)
		}
	}
	if _, err := (Card{Key: "TOOLONGKEY", Value: 1}).Encode(); err == nil {
		t.Error("Encode accepted a 10-character keyword")
	}
}

func TestHeader_Overflow(t *testing.T) {
	h := make(Header, CardsPerBlock)
	for i := range h {
		h[i] = Card{Key: fmt.Sprintf("K%d", i), Value: i}
	}
	if _, err := h.Encode(); !errors.Is(err, domain.ErrHeaderOverflow) {
		t.Errorf("Encode() error = %v, want ErrHeaderOverflow", err)
	}
	b, err := h[:CardsPerBlock-1].Encode()
	if err != nil {
		t.Fatalf("Encode 35 cards: %v", err)
	}
	if len(b) != BlockSize {
		t.Errorf("encoded header is %d bytes, want %d", len(b), BlockSize)
	}
}

func TestFile_PlaceholderThenPatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.fits")
	f, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	regions := []domain.Region{{Module: 2, Output: 1}, {Module: 2, Output: 2}}
	err = f.WritePrimary(PrimaryHeader(PrimaryInfo{
		FileName:   "out.fits",
		Extensions: len(regions),
		Created:    time.Date(2009, 5, 13, 0, 0, 0, 0, time.UTC),
		DataSet:    "kplr2009133",
	}))
	if err != nil {
		t.Fatal(err)
	}

	raws := [][]int32{{500, 501, 502}, {7}}
	offsets := make([]int64, len(regions))
	for i, r := range regions {
		cal := make([]float32, len(raws[i]))
		unc := make([]float32, len(raws[i]))
		for j := range cal {
			cal[j] = float32(raws[i][j]) - 20
			unc[j] = float32(math.Sqrt(float64(raws[i][j])))
		}
		data, err := EncodePixelRows(raws[i], cal, unc)
		if err != nil {
			t.Fatal(err)
		}
		offsets[i], err = f.Append(PlaceholderHeader(r), data)
		if err != nil {
			t.Fatal(err)
		}
	}
	for i, r := range regions {
		if err := f.Patch(offsets[i], TableHeader(r, pixelLayout, len(raws[i]))); err != nil {
			t.Fatalf("Patch: %v", err)
		}
	}

	primary, err := ReadHeaderAt(f.ReaderAt(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := primary.Int("NEXTEND"); n != 2 {
		t.Errorf("NEXTEND = %d, want 2", n)
	}
	if s, _ := primary.String("DATE"); s != "2009-05-13" {
		t.Errorf("DATE = %q", s)
	}

	off := int64(BlockSize)
	for i, r := range regions {
		ext, err := ReadExtension(f.ReaderAt(), off)
		if err != nil {
			t.Fatalf("ReadExtension(%d): %v", off, err)
		}
		if ext.Header.Offset != offsets[i] {
			t.Errorf("extension %d at %d, want %d", i, ext.Header.Offset, offsets[i])
		}
		if name, _ := ext.Header.String("EXTNAME"); name != r.ExtName() {
			t.Errorf("EXTNAME = %q, want %q", name, r.ExtName())
		}
		if n, _ := ext.Header.Int("TFIELDS"); n != 3 {
			t.Errorf("TFIELDS = %d, want 3", n)
		}
		raw, _, _, err := DecodePixelRows(ext.Data)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(raws[i], raw); diff != "" {
			t.Errorf("raw column mismatch (-want +got):\n%s", diff)
		}
		off = ext.Next
	}
	if off != f.Size() {
		t.Errorf("extensions end at %d, file size %d", off, f.Size())
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestFile_PatchOutOfRange(t *testing.T) {
	f, err := Create(filepath.Join(t.TempDir(), "x.fits"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Append(PlaceholderHeader(domain.Region{Module: 2, Output: 1}), nil); err == nil {
		t.Error("Append before primary header succeeded")
	}
	if err := f.WritePrimary(PrimaryHeader(PrimaryInfo{})); err != nil {
		t.Fatal(err)
	}
	if err := f.Patch(BlockSize, TableHeader(domain.Region{Module: 2, Output: 1}, pixelLayout, 0)); err == nil {
		t.Error("Patch past the end succeeded")
	}
}

func TestEncodePixelRows_Mismatch(t *testing.T) {
	_, err := EncodePixelRows([]int32{1, 2}, []float32{1}, []float32{1, 2})
	if !errors.Is(err, domain.ErrRowCountMismatch) {
		t.Errorf("error = %v, want ErrRowCountMismatch", err)
	}
}

func TestPixelRows_RoundTrip(t *testing.T) {
	raw := []int32{500, domain.MissingRaw}
	cal := []float32{476.5, domain.MissingCal}
	unc := []float32{1.25, domain.MissingCal}
	data, err := EncodePixelRows(raw, cal, unc)
	if err != nil {
		t.Fatal(err)
	}
	gr, gc, gu, err := DecodePixelRows(data)
	if err != nil {
		t.Fatal(err)
	}
	if gr[0] != 500 || gr[1] != -1 || gc[0] != 476.5 || gu[0] != 1.25 {
		t.Errorf("decoded %v %v %v", gr, gc, gu)
	}
	if !math.IsNaN(float64(gc[1])) || !math.IsNaN(float64(gu[1])) {
		t.Errorf("gap values not NaN: %v %v", gc[1], gu[1])
	}
}
