// Package scripts finds script files for batch runs. Arguments may name
// files, directories or doublestar globs; binary files are skipped by
// content sniffing.
package scripts
