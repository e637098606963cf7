package cache

import (
	"hash/fnv"
	"strings"
)

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

// compositeKey joins a namespace and a key into a single tier key.
func compositeKey(ns, key string) string {
	return safe(ns) + ":" + safe(key)
}

// stripe picks the lock guarding (ns, key).
func stripe(ns, key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ns))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}
