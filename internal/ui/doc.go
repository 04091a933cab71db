// Package ui renders terminal output for dictctl.
//
// Most commands run once and exit: they print a Header, then a table or a
// Result box, through a Printer. Printer.Quiet drops the decorations so the
// output can be piped.
//
// The watch command is the one interactive view. WatchModel is a Bubble Tea
// model that polls a FetchFunc on an interval and shows the latest Snapshot
// in a scrollable table.
//
// Logging stays silent unless DICTSERVER_LOG_LEVEL is set, so zap output
// does not interleave with the rendered boxes.
package ui
