package domain

// TargetAperture associates a visible pixel with the target and aperture
// that selected it.
type TargetAperture struct {
	TargetID   int32
	ApertureID int32
}
