package host

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Quote renders s as a double-quoted script string literal. JSON string
// syntax is valid ExtendScript, and it survives quotes and newlines.
func Quote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(data)
}

// EscapeForScript escapes backslashes and double quotes for text placed inside
// an existing double-quoted literal.
func EscapeForScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// IncludeScript returns the statement that loads the host function file.
func IncludeScript(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	return `$.evalFile("` + EscapeForScript(path) + `");`
}

// Call builds `fn(arg1, "arg2")`. Strings are quoted, numbers and booleans are
// written bare.
func Call(fn string, args ...any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, literal(arg))
	}
	return fn + "(" + strings.Join(parts, ", ") + ")"
}

func literal(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "null"
	case string:
		return Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.RawMessage:
		return Quote(string(v))
	default:
		return Quote(fmt.Sprint(v))
	}
}
