package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// ParseJSON decodes JSON bytes into a Value, preserving object key
// order. encoding/json's map decoding does not preserve order (and
// neither does any JSON library pulled in by the plugin ecosystem), so
// this walks the token stream directly. Numbers that fit in an int64
// decode as Integer; everything else numeric decodes as Float, per the
// language's `parse_json` contract.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			d := NewDict()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("expected object key, got %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				d.Set(key, val)
			}
			// consume closing '}'
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return DictVal(d), nil
		case '[':
			items := []Value{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(items), nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case string:
		return Str(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unsupported json token %T", tok)
	}
}

// MarshalJSON serialises a Value back into JSON text, preserving Dict
// key order. Bytes are converted to a string and marshal as a JSON
// string of their raw text (not base64).
func MarshalJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w io.Writer, v Value) error {
	switch v.Kind() {
	case KindNull:
		_, err := io.WriteString(w, "null")
		return err
	case KindBoolean:
		_, err := io.WriteString(w, strconv.FormatBool(v.Bool()))
		return err
	case KindInteger:
		_, err := io.WriteString(w, strconv.FormatInt(v.Int(), 10))
		return err
	case KindFloat:
		_, err := io.WriteString(w, strconv.FormatFloat(v.Float64(), 'g', -1, 64))
		return err
	case KindString:
		b, err := json.Marshal(v.String())
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case KindBytes:
		b, err := json.Marshal(string(v.BytesVal()))
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case KindArray:
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		for i, item := range v.ArrayVal() {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			if err := writeJSON(w, item); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		return err
	case KindDict:
		if _, err := io.WriteString(w, "{"); err != nil {
			return err
		}
		first := true
		var outerErr error
		v.DictVal().Range(func(key string, val Value) {
			if outerErr != nil {
				return
			}
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					outerErr = err
					return
				}
			}
			first = false
			kb, err := json.Marshal(key)
			if err != nil {
				outerErr = err
				return
			}
			if _, err := w.Write(kb); err != nil {
				outerErr = err
				return
			}
			if _, err := io.WriteString(w, ":"); err != nil {
				outerErr = err
				return
			}
			if err := writeJSON(w, val); err != nil {
				outerErr = err
				return
			}
		})
		if outerErr != nil {
			return outerErr
		}
		_, err := io.WriteString(w, "}")
		return err
	default:
		return fmt.Errorf("cannot marshal value of kind %s", v.Kind())
	}
}

// ToInterface converts a Value into a generic `interface{}` tree of
// the shapes JMESPath expects: map[string]interface{}, []interface{},
// string, float64, bool, nil. This is the bridge used by the
// `jmespath()` builtin and by the filter/switch/transform control
// processors, which evaluate JMESPath against the parsed-JSON message.
func ToInterface(v Value) interface{} {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBoolean:
		return v.Bool()
	case KindInteger:
		return float64(v.Int())
	case KindFloat:
		return v.Float64()
	case KindString:
		return v.String()
	case KindBytes:
		return string(v.BytesVal())
	case KindArray:
		out := make([]interface{}, len(v.ArrayVal()))
		for i, item := range v.ArrayVal() {
			out[i] = ToInterface(item)
		}
		return out
	case KindDict:
		out := make(map[string]interface{}, v.DictVal().Len())
		v.DictVal().Range(func(key string, val Value) {
			out[key] = ToInterface(val)
		})
		return out
	default:
		return nil
	}
}

// FromInterface converts a generic interface{} tree (as produced by
// the JMESPath library, or by json.Unmarshal into interface{}) back
// into a Value. Object key order is not recoverable from a
// map[string]interface{}, so callers that need round-trip fidelity
// must build the Dict with ParseJSON instead.
func FromInterface(i interface{}) Value {
	switch t := i.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return Str(t)
	case float64:
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return Int(n)
		}
		f, _ := t.Float64()
		return Float(f)
	case []interface{}:
		out := make([]Value, len(t))
		for i, item := range t {
			out[i] = FromInterface(item)
		}
		return Array(out)
	case map[string]interface{}:
		d := NewDict()
		for k, v := range t {
			d.Set(k, FromInterface(v))
		}
		return DictVal(d)
	default:
		return Null()
	}
}
