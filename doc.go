// Package fat12 reads, writes, and formats 1.44 MB FAT12 floppy disk
// images.
//
// A zero-value Image holds nothing; use OpenImage to load one from a
// reader or Format to build a blank one from scratch, then Mount (or
// work directly with the FS Format returns) to get an FS for file and
// directory operations. Paths are "/"-separated and case-insensitive,
// resolved against 8.3 names; see internal/dirent for the exact naming
// rules.
package fat12
