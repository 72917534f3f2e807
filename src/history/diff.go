package history

import (
	"reflect"

	"exceptiontracker/src/model"
)

// Diff keeps only the keys whose value differs between before and after.
// Both returned snapshots contain the same keys.
func Diff(before, after model.Values) (model.Values, model.Values) {
	oldValues := model.Values{}
	newValues := model.Values{}
	for k, v := range after {
		prev, ok := before[k]
		if ok && equal(prev, v) {
			continue
		}
		oldValues[k] = prev
		newValues[k] = v
	}
	return oldValues, newValues
}

func equal(a, b interface{}) bool {
	return reflect.DeepEqual(deref(a), deref(b))
}

// deref compares pointers by the value they point to; nil pointers become nil.
func deref(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}
