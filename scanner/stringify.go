package scanner

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Stringify renders a host value the way the panel displays it: nil is "",
// arrays are ", "-joined, booleans are "true"/"false" and numbers follow the
// script engine's String() form. Panics yield "".
func Stringify(v any) (out string) {
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	case float32:
		return formatNumber(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = Stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ", ")
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return Stringify(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		exp = strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
