// Package tag exposes compile-time switches for debug-only behaviour.
//
// Build with `-tags memcached_debug` to set Debug.
package tag

// Debug is true when the memcached_debug build tag is set. Its one user is
// connList, which clears the links and owner of a removed node when it is
// set. flatstore's invariant checks run in every build and do not consult
// it; there are no debug-only whole-structure scans (conservation of
// chunks, histogram-vs-census).
var Debug = debug
