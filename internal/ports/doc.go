// Package ports defines the interfaces (ports) that connect the export core to
// infrastructure adapters.
//
// Ports are the boundaries between the export core and the outside world.
// They define what the core needs from external systems without specifying
// how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [MetadataStore]: reference headers, cadence times, task lineage, alerts
//     and calibration-model history
//   - [BlobStore]: named blobs, pixel time series and cosmic-ray event series
//
// # Usage
//
// The export core (internal/export, internal/extract, internal/pmrf,
// internal/history) depends only on these interfaces. Infrastructure adapters
// (internal/adapters) implement them over SQLite, a local directory or memory.
package ports
