// Package pmrf reads pixel mapping reference tables and resolves the storage
// identifiers of the pixels they list.
//
// A mapping table is a FITS file holding one binary table extension per
// detector region (EXTNAME "MOD.OUT m.o"). Visible-pixel tables carry the
// columns ROW, COLUMN, TARGETID and APERTUREID; collateral tables carry TYPE
// and OFFSET. Row order is the order in which pixel values are exported.
//
// [Resolver] caches decoded tables and resolved identifier lists with bounded
// LRU eviction. [Index] packs (region, background, row, column) into one
// 64-bit key per pixel to find the target and aperture of a cosmic-ray event.
package pmrf
