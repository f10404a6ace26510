package postgres

import (
	"reflect"
	"sync"
)

// columnCache holds the "db" tag layout per row type.
var columnCache sync.Map // map[reflect.Type][]column

type column struct {
	index []int
	name  string
}

// Columns lists the "db" tag column names of row type T, including fields of
// embedded structs, in declaration order.
func Columns[T any]() []string {
	var zero T
	cols := columnsOf(reflect.TypeOf(zero))
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// ToMap converts a row struct into column/value pairs for squirrel's SetMap.
func ToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	cols := columnsOf(rv.Type())
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c.name] = rv.FieldByIndex(c.index).Interface()
	}
	return out
}

func columnsOf(t reflect.Type) []column {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	if t.Kind() == reflect.Struct {
		cols = collect(t, nil)
	}
	columnCache.Store(t, cols)
	return cols
}

func collect(t reflect.Type, prefix []int) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			cols = append(cols, collect(f.Type, index)...)
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, column{index: index, name: tag})
	}
	return cols
}
