package fitsfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/bft-labs/pixport/internal/domain"
)

// Column describes one binary table column. Only the J (int32) and
// E (float32) formats are written.
type Column struct {
	Name   string
	Format string
	Unit   string
}

// Width returns the byte width of one cell.
func (c Column) Width() int {
	switch c.Format {
	case "J", "E":
		return 4
	default:
		return 0
	}
}

// Layout is the ordered column set of a binary table.
type Layout []Column

// RowSize returns NAXIS1.
func (l Layout) RowSize() int {
	n := 0
	for _, c := range l {
		n += c.Width()
	}
	return n
}

// PrimaryInfo holds the fixed primary header fields of an exported file.
type PrimaryInfo struct {
	FileName    string
	Extensions  int
	Created     time.Time
	Cadence     int
	CadenceType string
	DataSet     string
	Quarter     int
	DataRelease int
	Extra       []Card
}

// PrimaryHeader builds the primary header. It declares no data and the
// number of region extensions that follow.
func PrimaryHeader(p PrimaryInfo) Header {
	h := Header{
		{Key: "SIMPLE", Value: true, Comment: "conforms to FITS standard"},
		{Key: "BITPIX", Value: 8, Comment: "array data type"},
		{Key: "NAXIS", Value: 0, Comment: "number of array dimensions"},
		{Key: "EXTEND", Value: true},
		{Key: "NEXTEND", Value: p.Extensions, Comment: "number of standard extensions"},
		{Key: "TELESCOP", Value: "Kepler", Comment: "telescope"},
		{Key: "INSTRUME", Value: "Kepler Photometer", Comment: "detector type"},
		{Key: "DATE", Value: p.Created.UTC().Format("2006-01-02"), Comment: "file creation date"},
		{Key: "FILENAME", Value: p.FileName, Comment: "name of file"},
		{Key: "DATASET", Value: p.DataSet, Comment: "data set name"},
		{Key: "CADENCEN", Value: p.Cadence, Comment: "cadence number"},
		{Key: "CADTYPE", Value: p.CadenceType, Comment: "cadence type"},
		{Key: "QUARTER", Value: p.Quarter, Comment: "observing quarter"},
		{Key: "DATA_REL", Value: p.DataRelease, Comment: "data release version number"},
	}
	return append(h, p.Extra...)
}

// PlaceholderHeader is written before a region's data while its row count is
// unknown. It declares no fields and no rows.
func PlaceholderHeader(region domain.Region) Header {
	return Header{
		{Key: "XTENSION", Value: "BINTABLE", Comment: "binary table extension"},
		{Key: "BITPIX", Value: 8},
		{Key: "NAXIS", Value: 2},
		{Key: "NAXIS1", Value: 0},
		{Key: "NAXIS2", Value: 0},
		{Key: "PCOUNT", Value: 0},
		{Key: "GCOUNT", Value: 1},
		{Key: "TFIELDS", Value: 0},
		{Key: "EXTNAME", Value: region.ExtName()},
	}
}

// TableHeader is the final header of a region's binary table.
func TableHeader(region domain.Region, layout Layout, rows int) Header {
	h := Header{
		{Key: "XTENSION", Value: "BINTABLE", Comment: "binary table extension"},
		{Key: "BITPIX", Value: 8},
		{Key: "NAXIS", Value: 2},
		{Key: "NAXIS1", Value: layout.RowSize(), Comment: "bytes per row"},
		{Key: "NAXIS2", Value: rows, Comment: "number of rows"},
		{Key: "PCOUNT", Value: 0},
		{Key: "GCOUNT", Value: 1},
		{Key: "TFIELDS", Value: len(layout), Comment: "number of fields"},
	}
	for i, c := range layout {
		n := i + 1
		h = append(h,
			Card{Key: fmt.Sprintf("TTYPE%d", n), Value: c.Name},
			Card{Key: fmt.Sprintf("TFORM%d", n), Value: "1" + c.Format},
		)
		if c.Unit != "" {
			h = append(h, Card{Key: fmt.Sprintf("TUNIT%d", n), Value: c.Unit})
		}
	}
	return append(h,
		Card{Key: "EXTNAME", Value: region.ExtName()},
		Card{Key: "MODULE", Value: region.Module, Comment: "CCD module"},
		Card{Key: "OUTPUT", Value: region.Output, Comment: "CCD output"},
		Card{Key: "CHANNEL", Value: region.Channel(), Comment: "CCD channel"},
	)
}

// EncodePixelRows encodes the (raw, calibrated, uncertainty) rows of a pixel
// table. The three columns must have the same length.
func EncodePixelRows(raw []int32, cal, unc []float32) ([]byte, error) {
	if len(cal) != len(raw) || len(unc) != len(raw) {
		return nil, fmt.Errorf("%w: %d raw, %d calibrated, %d uncertainty values",
			domain.ErrRowCountMismatch, len(raw), len(cal), len(unc))
	}
	out := make([]byte, 12*len(raw))
	for i := range raw {
		b := out[12*i:]
		binary.BigEndian.PutUint32(b[0:], uint32(raw[i]))
		binary.BigEndian.PutUint32(b[4:], math.Float32bits(cal[i]))
		binary.BigEndian.PutUint32(b[8:], math.Float32bits(unc[i]))
	}
	return out, nil
}

// DecodePixelRows is the inverse of EncodePixelRows.
func DecodePixelRows(data []byte) ([]int32, []float32, []float32, error) {
	if len(data)%12 != 0 {
		return nil, nil, nil, fmt.Errorf("pixel table data of %d bytes is not a whole number of rows", len(data))
	}
	n := len(data) / 12
	raw := make([]int32, n)
	cal := make([]float32, n)
	unc := make([]float32, n)
	for i := 0; i < n; i++ {
		b := data[12*i:]
		raw[i] = int32(binary.BigEndian.Uint32(b[0:]))
		cal[i] = math.Float32frombits(binary.BigEndian.Uint32(b[4:]))
		unc[i] = math.Float32frombits(binary.BigEndian.Uint32(b[8:]))
	}
	return raw, cal, unc, nil
}
