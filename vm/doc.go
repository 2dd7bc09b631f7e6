// Package vm implements the ujvm virtual machine.
//
// This package contains:
//   - Class registry and lazy loader for standard and compact class files
//   - Symbol engine comparing names in place inside class content
//   - Word-stack threads with per-slot reference bits
//   - Bytecode interpreter and invoke dispatch
//   - Monitors, exception unwinding and the GC mark walk
//   - Built-in native classes (Object, String, Runnable, uj/lang/RT)
//   - Cooperative scheduler and thread snapshots
package vm
