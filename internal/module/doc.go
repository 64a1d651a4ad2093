// Package module loads and unloads compiled-in extension units.
//
// A unit is a Spec with an entry point and an exit point. Units are built
// into the binary and listed in a Catalog; configuration names which of
// them to load. Init registers whatever handlers, listeners and timers the
// unit needs; Fini must remove them again.
package module
