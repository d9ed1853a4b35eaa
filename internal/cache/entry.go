package cache

import (
	"reflect"
	"sync/atomic"
	"time"
)

// entry is one cached value. Entries are plain data owned by the cache; an
// entry is logically expired once now > lastAccess + ttl, regardless of
// whether it is still physically present in the map.
type entry struct {
	value      any
	ttl        time.Duration
	lastAccess atomic.Int64 // unix nanoseconds
}

func newEntry(value any, ttl time.Duration, now time.Time) *entry {
	e := &entry{value: value, ttl: ttl}
	e.lastAccess.Store(now.UnixNano())
	return e
}

func (e *entry) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}

func (e *entry) lastAccessTime() time.Time {
	return time.Unix(0, e.lastAccess.Load())
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.lastAccessTime().Add(e.ttl))
}

// isEmpty reports whether a value is rejected by Set and skipped by Get's
// caching of fallback results: nil, empty string, empty slice or empty map.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
