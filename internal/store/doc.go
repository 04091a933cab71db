// Package store keeps the live dictionaries served by the server.
//
// A Store holds one Dictionary per installed .dpc file. Each dictionary
// tracks a set of matches, one per key the configuration mentions:
//
//   - config keys mirror the device value into the .dpc file
//   - log keys append every change to the dictionary's dslog database
//
// Device changes arrive as device.Event values and are applied by
// OnDictionaryChange. Config key changes only mark the match dirty; a
// background sync task later folds dirty matches back into the .dpc file,
// re-reading the file first so edits made by hand are kept.
//
// # Locking
//
// The store lock guards the dictionary list and the next serial number.
// Each dictionary has its own lock guarding its matches and flags. Code
// finds a dictionary under the store lock, releases it, then takes the
// dictionary lock; the two are never held together outside install and
// removal.
package store
