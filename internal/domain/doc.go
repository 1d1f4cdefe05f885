// Package domain contains the core domain entities and value objects for pixport.
//
// This package represents the innermost layer of the application. It has
// no dependencies on infrastructure concerns (FITS, stores, logging) and
// contains only the vocabulary shared by every other package.
//
// # Entities
//
//   - [Region]: one CCD module/output read-out, 84 of which carry science pixels
//   - [Category]: the closed set of pixel categories exported to separate files
//   - [StorageID]: an opaque, deterministic key into the time-series store
//   - [ReferenceHeader]: the per-(category, cadence) header an output file is built from
//   - [CosmicRayEvent]: a correction to subtract from one calibrated pixel at one time
//
// # Design Principles
//
// Domain values are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Comparable, so they can be used directly as map and cache keys
package domain
