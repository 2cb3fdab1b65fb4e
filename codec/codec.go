// Package codec encodes and decodes the payloads exchanged with the host
// scripting engine.
//
// The evalScript channel mangles non-ASCII and control characters passed as
// bare script text, so the host percent-encodes its JSON and marks it with a
// sentinel prefix. Small literal results (a bare "success") still arrive
// unencoded, so Decode accepts both forms.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Prefix marks a percent-encoded payload.
const Prefix = "__ENC__"

const upperhex = "0123456789ABCDEF"

// ErrEmptyPayload is wrapped by the DecodeError for an empty host result.
var ErrEmptyPayload = errors.New("host returned an empty result")

// DecodeError reports a payload that could not be turned back into JSON.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	if e == nil || e.Err == nil {
		return "failed to decode host payload"
	}
	return fmt.Sprintf("failed to decode host payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsEncoded reports whether raw carries the sentinel prefix.
func IsEncoded(raw string) bool {
	return strings.HasPrefix(raw, Prefix)
}

// Decode parses raw into a generic JSON value.
func Decode(raw string) (any, error) {
	var v any
	if err := DecodeInto(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeInto parses raw into v.
func DecodeInto(raw string, v any) error {
	text, err := unwrap(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return &DecodeError{Raw: raw, Err: err}
	}
	return nil
}

func unwrap(raw string) (string, error) {
	if raw == "" {
		return "", &DecodeError{Raw: raw, Err: ErrEmptyPayload}
	}
	if !IsEncoded(raw) {
		return raw, nil
	}
	decoded, err := url.PathUnescape(raw[len(Prefix):])
	if err != nil {
		return "", &DecodeError{Raw: raw, Err: err}
	}
	if !utf8.ValidString(decoded) {
		return "", &DecodeError{Raw: raw, Err: errors.New("payload is not valid UTF-8")}
	}
	return decoded, nil
}

// Encode serializes v to JSON, percent-encodes it and adds the prefix.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal host payload: %w", err)
	}
	return Prefix + EscapeComponent(string(data)), nil
}

// EscapeComponent percent-encodes s leaving only the URI-component unreserved
// set (A-Z a-z 0-9 - _ . ! ~ * ' ( )) untouched.
func EscapeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
