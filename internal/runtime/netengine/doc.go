// Package netengine implements a connection and packet-dispatch engine for
// TCP and UDP servers and clients: length-prefixed TCP framing, a UDP
// virtual-session demultiplexer, reference-counted connection lifecycles, a
// bounded per-socket processor pool, and graceful shutdown across all of
// these concurrent actors.
//
// It follows the runtime tree's conventions: plain exported config structs
// with constructor-resolved defaults, no logging framework (an optional Logf
// hook instead), and status errors shaped like internal/errors.StandardError.
package netengine
