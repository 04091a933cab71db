// Package webapi serves the dictionary API under /api/v1/dictionary.
//
// GET requests query a dictionary:
//
//	action=data  log rows filtered by gen, startid, endid, startdate,
//	             enddate and key; format=JSON|CSV; interval thins rows
//	action=get   what=dictionary (config as JSON) or what=dictionaries
//
// POST requests to /add, /update and /remove administer dictionaries and
// keys, selected by target=dictionary|key. Each operation is gated by the
// connection's permissions.
package webapi
