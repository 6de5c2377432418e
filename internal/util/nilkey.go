package util

import "reflect"

// IsNilKey reports whether k is a nil pointer, nil channel, nil unsafe
// pointer or a nil interface value. Such keys are rejected by the map.
func IsNilKey[K comparable](k K) bool {
	switch any(k).(type) {
	case string, int, int64, int32, uint, uint64, uint32, bool:
		return false
	}
	v := reflect.ValueOf(any(k))
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}
