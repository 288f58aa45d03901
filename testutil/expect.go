package testutil

import "reflect"

// DeepEqual compares values the way tests want to: nil maps and slices
// are interchangeable with empty ones.
func DeepEqual(x, y interface{}) bool {
	if reflect.DeepEqual(x, y) {
		return true
	}

	xv := reflect.ValueOf(x)
	yv := reflect.ValueOf(y)
	if xv.Kind() != yv.Kind() {
		return false
	}
	switch xv.Kind() {
	case reflect.Slice, reflect.Map:
		if xv.Len() == 0 && yv.Len() == 0 {
			return true
		}
	}
	return false
}
