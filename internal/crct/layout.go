// Package crct writes and reads cosmic-ray correction files.
//
// A correction file belongs to one data set and holds one binary table per
// (category, cadence). Visible categories record the corrected pixel with its
// target and aperture; collateral categories record the collateral type and
// offset.
package crct

import (
	"fmt"

	"github.com/astrogo/fitsio"

	"github.com/bft-labs/pixport/internal/domain"
)

// Layout is the record layout of one correction table.
type Layout int

const (
	VisibleLayout Layout = iota
	CollateralLayout
)

// Column names.
const (
	ColRow        = "ROW"
	ColColumn     = "COLUMN"
	ColType       = "TYPE"
	ColOffset     = "OFFSET"
	ColCorrection = "CRCORR"
	ColTargetID   = "TARGETID"
	ColApertureID = "APERTUREID"
)

// LayoutFor returns the layout used for a category.
func LayoutFor(c domain.Category) Layout {
	switch c {
	case domain.ShortCadenceTarget, domain.LongCadenceTarget, domain.Background:
		return VisibleLayout
	case domain.ShortCadenceCollateral, domain.LongCadenceCollateral:
		return CollateralLayout
	default:
		panic(fmt.Sprintf("crct: unknown category %d", int(c)))
	}
}

func (l Layout) String() string {
	switch l {
	case VisibleLayout:
		return "visible"
	case CollateralLayout:
		return "collateral"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Columns returns the binary-table columns of the layout, in order.
func (l Layout) Columns() []fitsio.Column {
	switch l {
	case VisibleLayout:
		return []fitsio.Column{
			{Name: ColRow, Format: "J"},
			{Name: ColColumn, Format: "J"},
			{Name: ColCorrection, Format: "E", Unit: "e-"},
			{Name: ColTargetID, Format: "J"},
			{Name: ColApertureID, Format: "J"},
		}
	case CollateralLayout:
		return []fitsio.Column{
			{Name: ColType, Format: "J"},
			{Name: ColOffset, Format: "J"},
			{Name: ColCorrection, Format: "E", Unit: "e-"},
		}
	default:
		panic(fmt.Sprintf("crct: unknown layout %d", int(l)))
	}
}

// VisibleRecord is one correction of a target or background pixel.
type VisibleRecord struct {
	Row        int32
	Column     int32
	Correction float32
	TargetID   int32
	ApertureID int32
}

// CollateralRecord is one correction of a collateral pixel.
type CollateralRecord struct {
	Type       int32
	Offset     int32
	Correction float32
}

// PixelEvents pairs a pixel position (row/column or type/offset) with its
// cosmic-ray events.
type PixelEvents struct {
	A, B   int32
	Events []domain.CosmicRayEvent
}

// Lookup finds the target and aperture of a visible pixel.
type Lookup interface {
	Find(region domain.Region, background bool, row, column int32) (domain.TargetAperture, bool)
}

// VisibleRecords builds the records of the events whose time equals mjd.
// Pixels the lookup cannot resolve are skipped.
func VisibleRecords(lookup Lookup, region domain.Region, background bool, pixels []PixelEvents, mjd float64) []VisibleRecord {
	var out []VisibleRecord
	for _, px := range pixels {
		for _, ev := range px.Events {
			if ev.MJD != mjd {
				continue
			}
			ta, ok := lookup.Find(region, background, px.A, px.B)
			if !ok {
				continue
			}
			out = append(out, VisibleRecord{
				Row:        px.A,
				Column:     px.B,
				Correction: ev.Value,
				TargetID:   ta.TargetID,
				ApertureID: ta.ApertureID,
			})
		}
	}
	return out
}

// CollateralRecords builds the records of the events whose time equals mjd.
func CollateralRecords(pixels []PixelEvents, mjd float64) []CollateralRecord {
	var out []CollateralRecord
	for _, px := range pixels {
		for _, ev := range px.Events {
			if ev.MJD == mjd {
				out = append(out, CollateralRecord{Type: px.A, Offset: px.B, Correction: ev.Value})
			}
		}
	}
	return out
}
