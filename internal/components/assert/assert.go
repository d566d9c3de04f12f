package assert

import (
	"fmt"
	"reflect"
)

// NotNil panics if value is nil, including typed nils hidden inside an interface.
func NotNil(value any, name string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", name))
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			panic(fmt.Sprintf("expected %s to be not nil", name))
		}
	}
}

func NotEmptyStr(str string, name string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be a non-empty string", name))
	}
}

func Positive[T ~int | ~int64 | ~float64](value T, name string) {
	if value <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %v", name, value))
	}
}
