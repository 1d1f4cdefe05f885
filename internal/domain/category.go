package domain

import "fmt"

// CadenceType distinguishes the two integration lengths.
type CadenceType int

const (
	LongCadence CadenceType = iota
	ShortCadence
)

func (c CadenceType) String() string {
	switch c {
	case LongCadence:
		return "long"
	case ShortCadence:
		return "short"
	default:
		return "unknown"
	}
}

// Label returns the short label used in file names ("lc" or "sc").
func (c CadenceType) Label() string {
	switch c {
	case LongCadence:
		return "lc"
	case ShortCadence:
		return "sc"
	default:
		return "xx"
	}
}

// CadenceOption selects which cadence types an export covers.
type CadenceOption int

const (
	CadenceAll CadenceOption = iota
	CadenceShortOnly
	CadenceLongOnly
)

// ParseCadenceOption parses "all", "short" or "long".
func ParseCadenceOption(s string) (CadenceOption, error) {
	switch s {
	case "all", "":
		return CadenceAll, nil
	case "short", "short-only":
		return CadenceShortOnly, nil
	case "long", "long-only":
		return CadenceLongOnly, nil
	default:
		return 0, fmt.Errorf("unknown cadence option %q", s)
	}
}

func (o CadenceOption) String() string {
	switch o {
	case CadenceAll:
		return "all"
	case CadenceShortOnly:
		return "short"
	case CadenceLongOnly:
		return "long"
	default:
		return "unknown"
	}
}

// Includes reports whether the option exports the given cadence type.
func (o CadenceOption) Includes(t CadenceType) bool {
	switch o {
	case CadenceAll:
		return true
	case CadenceShortOnly:
		return t == ShortCadence
	case CadenceLongOnly:
		return t == LongCadence
	default:
		return false
	}
}

// Category is the closed set of exported pixel categories. Every operation
// that depends on the category is a single exhaustive switch over these values.
type Category int

const (
	ShortCadenceTarget Category = iota
	LongCadenceTarget
	Background
	ShortCadenceCollateral
	LongCadenceCollateral
)

// Categories lists every category in sort order.
var Categories = []Category{
	ShortCadenceTarget,
	LongCadenceTarget,
	Background,
	ShortCadenceCollateral,
	LongCadenceCollateral,
}

// CategoriesFor returns the categories exported under the option.
func CategoriesFor(o CadenceOption) []Category {
	var out []Category
	for _, c := range Categories {
		if o.Includes(c.CadenceType()) {
			out = append(out, c)
		}
	}
	return out
}

func (c Category) CadenceType() CadenceType {
	switch c {
	case ShortCadenceTarget, ShortCadenceCollateral:
		return ShortCadence
	case LongCadenceTarget, Background, LongCadenceCollateral:
		return LongCadence
	default:
		panic(fmt.Sprintf("domain: unknown category %d", int(c)))
	}
}

// MappingSelector returns the keyword naming the category's pixel mapping table type.
func (c Category) MappingSelector() string {
	switch c {
	case ShortCadenceTarget:
		return "sct"
	case LongCadenceTarget:
		return "lct"
	case Background:
		return "bgp"
	case ShortCadenceCollateral:
		return "scc"
	case LongCadenceCollateral:
		return "lcc"
	default:
		panic(fmt.Sprintf("domain: unknown category %d", int(c)))
	}
}

// IsCollateral reports whether pixels are addressed by (type, offset)
// and carry no target/aperture association.
func (c Category) IsCollateral() bool {
	switch c {
	case ShortCadenceCollateral, LongCadenceCollateral:
		return true
	case ShortCadenceTarget, LongCadenceTarget, Background:
		return false
	default:
		panic(fmt.Sprintf("domain: unknown category %d", int(c)))
	}
}

// IsBackground reports whether the category holds background pixels.
func (c Category) IsBackground() bool {
	return c == Background
}

// kind is the pixel-kind component of storage identifiers.
func (c Category) kind() string {
	switch c {
	case ShortCadenceTarget, LongCadenceTarget:
		return "target"
	case Background:
		return "background"
	case ShortCadenceCollateral, LongCadenceCollateral:
		return "collateral"
	default:
		panic(fmt.Sprintf("domain: unknown category %d", int(c)))
	}
}

// FileSuffix returns the file name suffix of the category's output files.
func (c Category) FileSuffix() string {
	switch c {
	case ShortCadenceTarget:
		return "scs-targ"
	case LongCadenceTarget:
		return "lcs-targ"
	case Background:
		return "lcs-bkg"
	case ShortCadenceCollateral:
		return "scs-col"
	case LongCadenceCollateral:
		return "lcs-col"
	default:
		panic(fmt.Sprintf("domain: unknown category %d", int(c)))
	}
}

func (c Category) String() string {
	switch c {
	case ShortCadenceTarget:
		return "short-cadence-target"
	case LongCadenceTarget:
		return "long-cadence-target"
	case Background:
		return "background"
	case ShortCadenceCollateral:
		return "short-cadence-collateral"
	case LongCadenceCollateral:
		return "long-cadence-collateral"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ParseCategory is the inverse of String.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// CollateralType identifies the kind of a collateral pixel.
type CollateralType int32

const (
	BlackLevel   CollateralType = 1
	MaskedSmear  CollateralType = 2
	VirtualSmear CollateralType = 3
	BlackMasked  CollateralType = 4
	BlackVirtual CollateralType = 5
)

// CosmicRayExempt reports whether pixels of this collateral type are never
// cosmic-ray corrected. The short-cadence black corner pixels have no
// cosmic-ray series.
func (t CollateralType) CosmicRayExempt() bool {
	return t == BlackMasked || t == BlackVirtual
}

func (t CollateralType) String() string {
	switch t {
	case BlackLevel:
		return "black-level"
	case MaskedSmear:
		return "masked-smear"
	case VirtualSmear:
		return "virtual-smear"
	case BlackMasked:
		return "black-masked"
	case BlackVirtual:
		return "black-virtual"
	default:
		return fmt.Sprintf("collateral(%d)", int32(t))
	}
}
