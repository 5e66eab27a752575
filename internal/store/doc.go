// Package store provides the persistent key-value backends behind the local
// cache. Values are opaque byte strings; callers own their encoding.
package store
