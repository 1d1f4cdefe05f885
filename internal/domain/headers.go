package domain

import (
	"fmt"
	"time"
)

// ReferenceHeader is the header of one original (category, cadence) data file.
// Each one becomes exactly one exported output file.
type ReferenceHeader struct {
	Category           Category
	Cadence            int
	DataSet            string
	OriginalFile       string
	MappingTable       string
	TargetTableID      int
	BackgroundTableID  int
	ApertureTableID    int
	CompressionTableID int
	Quarter            int
	DataRelease        int
}

// FileName returns the name of the exported pixel file.
func (h ReferenceHeader) FileName() string {
	return fmt.Sprintf("%s_%s.fits", h.DataSet, h.Category.FileSuffix())
}

// CosmicRayFileName returns the name of the companion cosmic-ray file shared by
// every category of the header's data set.
func (h ReferenceHeader) CosmicRayFileName() string {
	return fmt.Sprintf("%s_%ss-crct.fits", h.DataSet, h.Category.CadenceType().Label())
}

// HistoryFileName returns the processing-history file for a long-cadence data set.
func HistoryFileName(longDataSet string) string {
	return longDataSet + "_dmc-history.txt"
}

// TaskRecord is one pipeline task as recorded by the metadata store.
type TaskRecord struct {
	ID               int64
	ParentID         int64
	PipelineName     string
	ModuleName       string
	SoftwareRevision string
	State            string
	StartProcessing  time.Time
	EndProcessing    time.Time
}

// Alert is a message raised by a pipeline task.
type Alert struct {
	TaskID   int64
	Time     time.Time
	Severity string
	Source   string
	Message  string
}

// ModelEvent records the ingest of one focal-plane calibration model revision.
type ModelEvent struct {
	IngestTime  time.Time
	ModelType   string
	Revision    int
	Description string
}
