// Package protocol holds the protobuf message bodies exchanged with the
// quote and trade gateways.
//
// Messages are plain structs tagged with their proto field numbers
// (`pb:"N"`) and encoded with protowire. Supported field kinds are the ones
// the gateways use: string, bytes, bool, 32/64-bit integers (including named
// enum types), repeated strings, packed repeated int32, and singular or
// repeated nested messages.
package protocol

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

type fieldInfo struct {
	num   protowire.Number
	index int
}

var fieldCache sync.Map // reflect.Type -> []fieldInfo

func fieldsOf(t reflect.Type) []fieldInfo {
	if v, ok := fieldCache.Load(t); ok {
		return v.([]fieldInfo)
	}
	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("pb")
		if tag == "" {
			continue
		}
		n, err := strconv.Atoi(tag)
		if err != nil || n <= 0 {
			panic("protocol: bad pb tag on " + t.Name() + "." + t.Field(i).Name)
		}
		fields = append(fields, fieldInfo{num: protowire.Number(n), index: i})
	}
	fieldCache.Store(t, fields)
	return fields
}

// Marshal encodes msg, which must be a pointer to a tagged struct.
func Marshal(msg any) ([]byte, error) {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, errors.Errorf("protocol: marshal %T: want pointer to struct", msg)
	}
	return appendMessage(nil, v.Elem())
}

func appendMessage(b []byte, v reflect.Value) ([]byte, error) {
	var err error
	for _, f := range fieldsOf(v.Type()) {
		if b, err = appendField(b, f.num, v.Field(f.index)); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func appendField(b []byte, num protowire.Number, fv reflect.Value) ([]byte, error) {
	switch fv.Kind() {
	case reflect.String:
		if fv.Len() > 0 {
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, fv.String())
		}
	case reflect.Bool:
		if fv.Bool() {
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, 1)
		}
	case reflect.Int32, reflect.Int64:
		if x := fv.Int(); x != 0 {
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(x))
		}
	case reflect.Uint32, reflect.Uint64:
		if x := fv.Uint(); x != 0 {
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, x)
		}
	case reflect.Pointer:
		if fv.IsNil() {
			return b, nil
		}
		sub, err := appendMessage(nil, fv.Elem())
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	case reflect.Slice:
		return appendRepeated(b, num, fv)
	default:
		return nil, errors.Errorf("protocol: unsupported field kind %s", fv.Kind())
	}
	return b, nil
}

func appendRepeated(b []byte, num protowire.Number, fv reflect.Value) ([]byte, error) {
	if fv.Len() == 0 {
		return b, nil
	}
	elem := fv.Type().Elem()
	switch elem.Kind() {
	case reflect.Uint8:
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, fv.Bytes())
	case reflect.String:
		for i := 0; i < fv.Len(); i++ {
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, fv.Index(i).String())
		}
	case reflect.Int32, reflect.Int64:
		var packed []byte
		for i := 0; i < fv.Len(); i++ {
			packed = protowire.AppendVarint(packed, uint64(fv.Index(i).Int()))
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	case reflect.Struct, reflect.Pointer:
		for i := 0; i < fv.Len(); i++ {
			item := fv.Index(i)
			if item.Kind() == reflect.Pointer {
				if item.IsNil() {
					continue
				}
				item = item.Elem()
			}
			sub, err := appendMessage(nil, item)
			if err != nil {
				return nil, err
			}
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, sub)
		}
	default:
		return nil, errors.Errorf("protocol: unsupported repeated kind %s", elem.Kind())
	}
	return b, nil
}

// Unmarshal decodes b into msg, which must be a pointer to a tagged struct.
// Unknown fields are skipped.
func Unmarshal(b []byte, msg any) error {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return errors.Errorf("protocol: unmarshal %T: want pointer to struct", msg)
	}
	return errors.Wrapf(decodeMessage(b, v.Elem()), "protocol: decode %s", v.Elem().Type().Name())
}

func decodeMessage(b []byte, v reflect.Value) error {
	fields := fieldsOf(v.Type())
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var fv reflect.Value
		for _, f := range fields {
			if f.num == num {
				fv = v.Field(f.index)
				break
			}
		}
		if !fv.IsValid() {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		switch typ {
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := setVarint(fv, x); err != nil {
				return err
			}
		case protowire.BytesType:
			data, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := setBytes(fv, data); err != nil {
				return err
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func setVarint(fv reflect.Value, x uint64) error {
	switch fv.Kind() {
	case reflect.Bool:
		fv.SetBool(x != 0)
	case reflect.Int32:
		fv.SetInt(int64(int32(x)))
	case reflect.Int64:
		fv.SetInt(int64(x))
	case reflect.Uint32:
		fv.SetUint(uint64(uint32(x)))
	case reflect.Uint64:
		fv.SetUint(x)
	case reflect.Slice:
		// unpacked repeated scalar
		switch fv.Type().Elem().Kind() {
		case reflect.Int32:
			appendInt(fv, int64(int32(x)))
		case reflect.Int64:
			appendInt(fv, int64(x))
		default:
			return errors.Errorf("varint into %s", fv.Type())
		}
	default:
		return errors.Errorf("varint into %s", fv.Type())
	}
	return nil
}

func setBytes(fv reflect.Value, data []byte) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(string(data))
	case reflect.Pointer:
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		return decodeMessage(data, fv.Elem())
	case reflect.Slice:
		elem := fv.Type().Elem()
		switch elem.Kind() {
		case reflect.Uint8:
			fv.SetBytes(append([]byte(nil), data...))
		case reflect.String:
			fv.Set(reflect.Append(fv, reflect.ValueOf(string(data)).Convert(elem)))
		case reflect.Int32, reflect.Int64:
			for len(data) > 0 {
				x, n := protowire.ConsumeVarint(data)
				if n < 0 {
					return protowire.ParseError(n)
				}
				data = data[n:]
				if elem.Kind() == reflect.Int32 {
					appendInt(fv, int64(int32(x)))
				} else {
					appendInt(fv, int64(x))
				}
			}
		case reflect.Struct:
			item := reflect.New(elem).Elem()
			if err := decodeMessage(data, item); err != nil {
				return err
			}
			fv.Set(reflect.Append(fv, item))
		case reflect.Pointer:
			item := reflect.New(elem.Elem())
			if err := decodeMessage(data, item.Elem()); err != nil {
				return err
			}
			fv.Set(reflect.Append(fv, item))
		default:
			return errors.Errorf("bytes into %s", fv.Type())
		}
	default:
		return errors.Errorf("bytes into %s", fv.Type())
	}
	return nil
}

func appendInt(fv reflect.Value, x int64) {
	item := reflect.New(fv.Type().Elem()).Elem()
	item.SetInt(x)
	fv.Set(reflect.Append(fv, item))
}
