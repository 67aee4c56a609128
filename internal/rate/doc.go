// Package rate provides the Redis fixed-window counter used by the request
// limiters: INCR plus EXPIRE on the first hit of a window.
package rate
