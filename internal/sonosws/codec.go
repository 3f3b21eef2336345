package sonosws

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Payload — непрозрачный JSON-объект (команда, опции или элемент ответа).
type Payload map[string]any

func (p Payload) GetString(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Response — ответ устройства; обычно [статус, данные].
type Response []Payload

func (r Response) Status() Payload {
	if len(r) == 0 {
		return nil
	}
	return r[0]
}

func (r Response) Data() Payload {
	if len(r) < 2 {
		return nil
	}
	return r[1]
}

func (r Response) Success() bool {
	ok, _ := r.Status()["success"].(bool)
	return ok
}

func encodeEnvelope(command, options Payload) ([]byte, error) {
	if options == nil {
		options = Payload{}
	}
	if command == nil {
		command = Payload{}
	}
	list, err := structpb.NewList([]any{plain(command), plain(options)})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return protojson.Marshal(list)
}

// decodeResponse разбирает тело ответа. Пара статус/данные не проверяется:
// не-объектные элементы массива становятся пустыми Payload, одиночный объект
// становится ответом из одного элемента.
func decodeResponse(data []byte) (Response, error) {
	var v structpb.Value
	if err := protojson.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StructValue:
		return Response{Payload(k.StructValue.AsMap())}, nil
	case *structpb.Value_ListValue:
		out := make(Response, 0, len(k.ListValue.GetValues()))
		for _, e := range k.ListValue.GetValues() {
			if st := e.GetStructValue(); st != nil {
				out = append(out, Payload(st.AsMap()))
				continue
			}
			out = append(out, Payload{})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode response: body is neither an array nor an object")
	}
}

// structpb не знает наших именованных типов
func plain(v any) any {
	switch t := v.(type) {
	case Payload:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	case []Payload:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = plain(e)
		}
		return s
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = plain(e)
		}
		return s
	case []string:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = e
		}
		return s
	default:
		return v
	}
}
