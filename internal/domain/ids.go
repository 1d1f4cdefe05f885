package domain

import "fmt"

// Purpose selects which series of a pixel a storage identifier addresses.
type Purpose int

const (
	PurposeRaw Purpose = iota
	PurposeCalibrated
	PurposeUncertainty
	PurposeCosmicRay
)

// Purposes lists every purpose.
var Purposes = []Purpose{PurposeRaw, PurposeCalibrated, PurposeUncertainty, PurposeCosmicRay}

func (p Purpose) String() string {
	switch p {
	case PurposeRaw:
		return "raw"
	case PurposeCalibrated:
		return "calibrated"
	case PurposeUncertainty:
		return "uncertainty"
	case PurposeCosmicRay:
		return "cosmic-ray"
	default:
		return fmt.Sprintf("purpose(%d)", int(p))
	}
}

func (p Purpose) prefix() string {
	switch p {
	case PurposeRaw:
		return "/dr/pixel"
	case PurposeCalibrated:
		return "/cal/pixels/SocCal"
	case PurposeUncertainty:
		return "/cal/pixels/SocCalUncertainties"
	case PurposeCosmicRay:
		return "/cal/pixels/SocCal/CosmicRaySeries"
	default:
		panic(fmt.Sprintf("domain: unknown purpose %d", int(p)))
	}
}

// StorageID is an opaque key into the time-series store.
type StorageID string

// NewStorageID resolves a pixel to its storage key. For visible pixels a and b
// are row and column; for collateral pixels they are collateral type and offset.
// The same arguments always produce the same identifier.
func NewStorageID(r Region, c Category, p Purpose, a, b int32) StorageID {
	return StorageID(fmt.Sprintf("%s/%s/%s/%d/%d/%d:%d",
		p.prefix(), c.CadenceType(), c.kind(), r.Module, r.Output, a, b))
}
