package domain

import (
	"math"
	"sort"
)

// Gap sentinels used when filling missing cadences.
const MissingRaw int32 = -1

// MissingCal is the gap fill for calibrated and uncertainty values.
var MissingCal = float32(math.NaN())

// IntSeries is one raw pixel time series over a cadence range.
type IntSeries struct {
	ID      StorageID
	Values  []int32
	Gaps    []bool
	Origins []int64
}

// FloatSeries is one calibrated or uncertainty time series over a cadence range.
type FloatSeries struct {
	ID      StorageID
	Values  []float32
	Gaps    []bool
	Origins []int64
}

// CosmicRayEvent is a single detected cosmic-ray correction.
type CosmicRayEvent struct {
	ID     StorageID
	MJD    float64
	Value  float32
	TaskID int64
}

// EventSeries holds the cosmic-ray events of one pixel, ordered by time.
type EventSeries struct {
	ID     StorageID
	Events []CosmicRayEvent
}

// TaskIDs returns the distinct producing task ids of the events.
func (s EventSeries) TaskIDs() []int64 {
	seen := make(map[int64]struct{}, len(s.Events))
	var out []int64
	for _, e := range s.Events {
		if _, ok := seen[e.TaskID]; ok {
			continue
		}
		seen[e.TaskID] = struct{}{}
		out = append(out, e.TaskID)
	}
	return out
}

// CadenceTimes maps cadence numbers of one type to their timestamps.
// Index 0 holds cadence Start.
type CadenceTimes struct {
	Type     CadenceType
	Start    int
	StartMJD []float64
	MidMJD   []float64
	EndMJD   []float64
}

// End returns the last cadence covered.
func (t CadenceTimes) End() int { return t.Start + len(t.MidMJD) - 1 }

// Len returns the number of cadences.
func (t CadenceTimes) Len() int { return len(t.MidMJD) }

// Span returns the time range covered by the cadences.
func (t CadenceTimes) Span() (float64, float64) {
	if len(t.MidMJD) == 0 {
		return 0, 0
	}
	return t.StartMJD[0], t.EndMJD[len(t.EndMJD)-1]
}

// Mid returns the mid-time of a cadence.
func (t CadenceTimes) Mid(cadence int) (float64, bool) {
	i := cadence - t.Start
	if i < 0 || i >= len(t.MidMJD) {
		return 0, false
	}
	return t.MidMJD[i], true
}

// Index returns the cadence index whose mid-time equals mjd exactly.
// Event timestamps are written with the canonical cadence mid-times, so no
// tolerance is applied.
func (t CadenceTimes) Index(mjd float64) (int, bool) {
	i := sort.SearchFloat64s(t.MidMJD, mjd)
	if i < len(t.MidMJD) && t.MidMJD[i] == mjd {
		return i, true
	}
	return -1, false
}

// Covering returns the index of the cadence whose [start, end] span contains mjd.
func (t CadenceTimes) Covering(mjd float64) (int, bool) {
	i := sort.SearchFloat64s(t.EndMJD, mjd)
	if i < len(t.EndMJD) && t.StartMJD[i] <= mjd {
		return i, true
	}
	return -1, false
}
