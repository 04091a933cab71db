// Package dpc reads and writes dictionary definition files.
//
// A .dpc file is a YAML document holding one "dictionary" tree:
//
//	dictionary:
//	  enabled: true
//	  label: Sensor1
//	  sn: 7
//	  generation: default
//	  add: false
//	  config:
//	    key:
//	      temperature:
//	        value: "21.5"
//	        update: true
//	        remove: false
//	  log:
//	    key:
//	      temperature:
//	        interval:
//	          min: 10
//
// Document addresses entries with dotted paths such as
// "dictionary.config.key.temperature.value". Edits operate on the parsed
// yaml.Node tree, so rendering a document keeps comments and the order of
// entries that were not touched.
package dpc
