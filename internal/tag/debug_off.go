//go:build !memcached_debug

package tag

const debug = false
