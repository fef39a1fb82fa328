package bus

import (
	"fmt"
	"math"
	"reflect"

	godbus "github.com/godbus/dbus/v5"
)

// ConvertArgs coerces JSON-decoded arguments to the wire types named by
// signature. Supported codes are the basic types (y b n q i u x t d s o g),
// v, and arrays of those. An empty signature passes strings and booleans
// through and turns integral numbers into int32.
func ConvertArgs(signature string, args []any) ([]any, error) {
	if signature == "" {
		out := make([]any, len(args))
		for i, a := range args {
			out[i] = guess(a)
		}
		return out, nil
	}

	codes, err := splitSignature(signature)
	if err != nil {
		return nil, err
	}
	if len(codes) != len(args) {
		return nil, fmt.Errorf("signature %q expects %d arguments, got %d", signature, len(codes), len(args))
	}

	out := make([]any, len(args))
	for i, code := range codes {
		v, err := convert(code, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func splitSignature(sig string) ([]string, error) {
	if _, err := godbus.ParseSignature(sig); err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", sig, err)
	}
	var codes []string
	for i := 0; i < len(sig); i++ {
		c := sig[i]
		switch {
		case c == 'a' && i+1 < len(sig) && isSupported(sig[i+1]):
			codes = append(codes, sig[i:i+2])
			i++
		case isSupported(c):
			codes = append(codes, string(c))
		default:
			return nil, fmt.Errorf("unsupported signature %q: only basic types, v and arrays of them", sig)
		}
	}
	return codes, nil
}

func isSupported(c byte) bool {
	switch c {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v':
		return true
	}
	return false
}

func convert(code string, v any) (any, error) {
	if len(code) == 2 {
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("type a%c wants an array, got %T", code[1], v)
		}
		return convertArray(code[1], items)
	}

	switch code[0] {
	case 's':
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("type s wants a string, got %T", v)
		}
		return s, nil
	case 'o':
		s, ok := v.(string)
		if !ok || !godbus.ObjectPath(s).IsValid() {
			return nil, fmt.Errorf("type o wants an object path, got %v", v)
		}
		return godbus.ObjectPath(s), nil
	case 'g':
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("type g wants a signature string, got %T", v)
		}
		sig, err := godbus.ParseSignature(s)
		if err != nil {
			return nil, err
		}
		return sig, nil
	case 'b':
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("type b wants a boolean, got %T", v)
		}
		return b, nil
	case 'd':
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("type d wants a number, got %T", v)
		}
		return f, nil
	case 'v':
		return godbus.MakeVariant(guess(v)), nil
	default:
		return convertInt(code[0], v)
	}
}

func convertArray(code byte, items []any) (any, error) {
	switch code {
	case 's':
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: type s wants a string, got %T", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		out := make([]any, len(items))
		for i, item := range items {
			v, err := convert(string(code), item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}
}

// intRanges holds [min, max) per integer type. The upper bound is exclusive
// because MaxInt64 and MaxUint64 round up to 2^63 and 2^64 as float64.
var intRanges = map[byte][2]float64{
	'y': {0, math.MaxUint8 + 1},
	'n': {math.MinInt16, math.MaxInt16 + 1},
	'q': {0, math.MaxUint16 + 1},
	'i': {math.MinInt32, math.MaxInt32 + 1},
	'u': {0, math.MaxUint32 + 1},
	'x': {math.MinInt64, 0x1p63},
	't': {0, 0x1p64},
}

func convertInt(code byte, v any) (any, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("type %c wants a number, got %T", code, v)
	}
	r := intRanges[code]
	if f != math.Trunc(f) || f < r[0] || f >= r[1] {
		return nil, fmt.Errorf("type %c: %v out of range", code, f)
	}
	switch code {
	case 'y':
		return byte(f), nil
	case 'n':
		return int16(f), nil
	case 'q':
		return uint16(f), nil
	case 'i':
		return int32(f), nil
	case 'u':
		return uint32(f), nil
	case 'x':
		return int64(f), nil
	default:
		return uint64(f), nil
	}
}

func guess(v any) any {
	f, ok := v.(float64)
	if ok && f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
		return int32(f)
	}
	return v
}

// Plain converts reply values into JSON-friendly Go values: variants are
// unwrapped, object paths and signatures become strings, and maps are keyed
// by their string form.
func Plain(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case godbus.Variant:
		return Plain(x.Value())
	case godbus.ObjectPath:
		return string(x)
	case godbus.Signature:
		return x.String()
	case []byte:
		return x
	case string, bool, float64, int32, uint32, int64, uint64, int16, uint16, byte:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Plain(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(Plain(iter.Key().Interface()))] = Plain(iter.Value().Interface())
		}
		return out
	default:
		return v
	}
}
