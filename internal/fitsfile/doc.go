// Package fitsfile writes FITS files whose extension headers are patched in
// place after their data has been written.
//
// Every header written by this package occupies exactly one 2880-byte block,
// so a placeholder header can later be overwritten by the final header at the
// same offset without moving any data. Binary table rows are big-endian and
// the data area of each extension is zero-padded to a block boundary.
//
// A file has this shape:
//
//	+-----------------+  offset 0
//	| primary header  |  1 block, NAXIS = 0, NEXTEND = n
//	+-----------------+
//	| ext header      |  1 block, patched after the data is known
//	| ext data        |  NAXIS1*NAXIS2 bytes, padded
//	+-----------------+
//	| ...             |
//	+-----------------+
package fitsfile
