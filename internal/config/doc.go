// Package config loads dictionary server settings and the dictctl client
// profile.
//
// Server settings live in a TOML file (see Config). Every field has a
// default, so a missing file yields a working server that serves no static
// files and keeps the web API disabled. A few environment variables override
// the file:
//
//	DICTSERVER_PORT            listener port
//	DICTSERVER_DOCROOT         static file root
//	DICTSERVER_DICTIONARY_DIR  .dpc directory
//	DICTSERVER_DATABASE_DIR    log database directory
//	DICTSERVER_WEBAPI          "1" or "true" enables the dictionary web API
//
// # Example
//
//	[server]
//	port = 8080
//
//	[www]
//	docroot = "/usr/share/dictserver/www"
//	cachectrl = "nocache"
//
//	[dictionary]
//	directory = "/etc/phidgets/dictionary.d"
//	sync = "5s"
//
//	[dictionary.webapi]
//	enabled = true
//	remove_key = true
//
// The client profile (Profile) is a small TOML file in the user's
// configuration directory remembering which server dictctl talks to.
package config
