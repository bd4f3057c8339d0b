package commitment

import (
	"reflect"
	"slices"

	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// cloneReasoning returns a copy of r that shares no maps, slices or pointers
// with it, however deeply the data points nest.
func cloneReasoning(r *storage.Reasoning) *storage.Reasoning {
	if r == nil {
		return nil
	}
	c := *r
	c.Factors = slices.Clone(r.Factors)
	if r.DataPoints != nil {
		c.DataPoints = deepCopy(reflect.ValueOf(r.DataPoints)).Interface().(map[string]any)
	}
	return &c
}

// cloneContext deep-copies a commitment context map.
func cloneContext(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(m)).Interface().(map[string]any)
}

func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	default:
		return v
	}
}
