// Package config defines configuration structures for the picslurp CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (PICSLURP_ prefix)
//   - YAML configuration file
//
// Precedence is defaults, then file, then environment, then flags.
//
// # Header rules
//
// Request headers are chosen per origin by URL prefix. Rules are tried in
// file order and the first match wins. Its headers are layered over
// default_headers; URLs matching no rule get default_headers alone.
//
//	headers:
//	  - prefix: "http://i.example.net/"
//	    headers:
//	      Referer: "http://www.example.net"
//	default_headers:
//	  User-Agent: "Mozilla/5.0 ..."
package config
