package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ValueKind 標記 Value 實際攜帶的資料型別
type ValueKind int

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindBool
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrUnsupportedValue 表示來源資料無法表示為 Value（例如陣列）
var ErrUnsupportedValue = errors.New("unsupported value type")

// Value 帶標籤的動態值：null、數字、字串、布林或巢狀 map 其中之一。
// 用於 planning data、resource requirements 與轉換 metadata。
type Value struct {
	kind ValueKind
	num  float64
	str  string
	b    bool
	m    map[string]Value
}

// Values 字串鍵對應 Value 的開放式映射
type Values map[string]Value

func Null() Value { return Value{} }

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Int(i int64) Value { return Value{kind: KindNumber, num: float64(i)} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time 以 RFC3339Nano 字串保存時間戳
func Time(t time.Time) Value { return String(t.UTC().Format(time.RFC3339Nano)) }

// Map 建立巢狀 map 值；輸入會被複製
func Map(m Values) Value { return Value{kind: KindMap, m: m.Clone()} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Int64 只在數值為整數時回傳 ok
func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber || v.num != math.Trunc(v.num) {
		return 0, false
	}
	return int64(v.num), true
}

func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Entries 回傳巢狀 map 的拷貝
func (v Value) Entries() (Values, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return Values(v.m).Clone(), true
}

// Equal 深度比較兩個值
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(data)
}

// Any 轉回 Go 的原生表示（map[string]any、float64、string、bool、nil）
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Any()
		}
		return out
	default:
		return nil
	}
}

// FromAny 將解碼後的 JSON 資料轉為 Value
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case int32:
		return Int(int64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case map[string]any:
		m := make(Values, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = ev
		}
		return Value{kind: KindMap, m: m}, nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Clone 深拷貝
func (vs Values) Clone() Values {
	if vs == nil {
		return nil
	}
	out := make(Values, len(vs))
	for k, v := range vs {
		if v.kind == KindMap {
			v = Value{kind: KindMap, m: Values(v.m).Clone()}
		}
		out[k] = v
	}
	return out
}

// Merge 將 updates 逐鍵覆寫進 vs（last-write-wins）
func (vs Values) Merge(updates Values) {
	for k, v := range updates {
		if v.kind == KindMap {
			v = Value{kind: KindMap, m: Values(v.m).Clone()}
		}
		vs[k] = v
	}
}

// Keys 回傳排序後的鍵
func (vs Values) Keys() []string {
	keys := make([]string, 0, len(vs))
	for k := range vs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
