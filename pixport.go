// Package pixport exports calibrated detector pixels to per-cadence FITS files.
//
// Example usage:
//
//	cfg := pixport.Config{
//	    Start:      1000,
//	    End:        1999,
//	    Option:     pixport.CadenceLongOnly,
//	    OutputDir:  "/data/export",
//	    Threads:    8,
//	    ChunkSize:  500,
//	    MetadataDB: "/data/pixport.db",
//	    BlobDir:    "/data/blobs",
//	}
//	m, err := pixport.Run(context.Background(), cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(m.Runs), "runs")
package pixport

import (
	"context"

	"github.com/bft-labs/pixport/internal/app"
	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/pkg/log"
	"github.com/bft-labs/pixport/pkg/manifest"
)

// Config holds the configuration of a chunked export.
type Config = app.Config

// CadenceOption selects which cadence types an export covers.
type CadenceOption = domain.CadenceOption

// Cadence options.
const (
	CadenceAll       = domain.CadenceAll
	CadenceShortOnly = domain.CadenceShortOnly
	CadenceLongOnly  = domain.CadenceLongOnly
)

// Run exports every chunk of cfg's cadence range and writes the export
// manifest into the output directory. A nil logger discards log output.
func Run(ctx context.Context, cfg Config, logger log.Logger) (manifest.Manifest, error) {
	return app.NewExporter(cfg, logger).Run(ctx)
}

// Verify compares the export manifest in dir with the files on disk.
func Verify(ctx context.Context, dir string) ([]manifest.Mismatch, error) {
	return app.Verify(ctx, dir)
}
