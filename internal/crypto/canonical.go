package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// maxDepth bounds nesting so a cyclic value fails instead of recursing forever.
const maxDepth = 64

var timeType = reflect.TypeOf(time.Time{})

// Canonicalize encodes v as canonical JSON: object keys sorted after NFC
// normalization, strings NFC, nil object members dropped, integers only.
// Structs are projected through their json tags first.
func Canonicalize(v any) ([]byte, error) {
	var e encoder
	if err := e.value(v, 0); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// Digest canonicalizes v and returns the prefixed digest alongside the raw digest bytes.
func Digest(v any) (string, []byte, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", nil, err
	}
	return DigestWithPrefix(canonical), DigestBytes(canonical), nil
}

type encoder struct {
	buf bytes.Buffer
}

type member struct {
	key   string
	value any
}

func (e *encoder) value(v any, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}
	switch x := v.(type) {
	case nil:
		e.buf.WriteString("null")
		return nil
	case json.Number:
		return e.number(x)
	case time.Time:
		return e.str(x.UTC().Format(time.RFC3339Nano))
	case []byte:
		if x == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.str(base64.StdEncoding.EncodeToString(x))
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return e.str(rv.String())
	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return ErrFloatNotAllowed
	case reflect.Map:
		return e.object(rv, depth)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return e.value(rv.Bytes(), depth)
		}
		return e.array(rv, depth)
	case reflect.Array:
		return e.array(rv, depth)
	case reflect.Struct:
		if rv.Type() == timeType {
			return e.value(rv.Interface(), depth)
		}
		return e.structure(rv, depth)
	case reflect.Invalid:
		e.buf.WriteString("null")
		return nil
	default:
		return ErrUnsupportedType
	}
}

// structure round-trips through encoding/json with UseNumber so json tags
// decide field names and floats are still caught.
func (e *encoder) structure(rv reflect.Value, depth int) error {
	raw, err := json.Marshal(rv.Interface())
	if err != nil {
		return ErrUnsupportedType
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return ErrUnsupportedType
	}
	return e.value(generic, depth)
}

func (e *encoder) str(s string) error {
	encoded, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return err
	}
	e.buf.Write(encoded)
	return nil
}

func (e *encoder) number(n json.Number) error {
	if strings.ContainsAny(n.String(), ".eE") {
		return ErrFloatNotAllowed
	}
	value, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return ErrFloatNotAllowed
	}
	e.buf.WriteString(strconv.FormatInt(value, 10))
	return nil
}

func (e *encoder) object(rv reflect.Value, depth int) error {
	if rv.Type().Key().Kind() != reflect.String {
		return ErrNonStringMapKey
	}

	members := make([]member, 0, rv.Len())
	seen := make(map[string]struct{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := norm.NFC.String(iter.Key().String())
		if _, dup := seen[key]; dup {
			return ErrKeyCollision
		}
		seen[key] = struct{}{}

		val := iter.Value().Interface()
		if isNil(val) {
			continue
		}
		members = append(members, member{key: key, value: val})
	}
	slices.SortFunc(members, func(a, b member) int { return strings.Compare(a.key, b.key) })

	e.buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.str(m.key); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.value(m.value, depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) array(rv reflect.Value, depth int) error {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		e.buf.WriteString("null")
		return nil
	}
	e.buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.value(rv.Index(i).Interface(), depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
