package transcoder

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// Value is a typed native value in the engine's raw slot encoding.
type Value struct {
	bits uint64
	Kind engine.ValueKind
}

// I32 creates an i32 value.
func I32(v int32) Value { return Value{Kind: engine.ValueI32, bits: uint64(uint32(v))} }

// I64 creates an i64 value.
func I64(v int64) Value { return Value{Kind: engine.ValueI64, bits: uint64(v)} }

// F32 creates an f32 value.
func F32(v float32) Value { return Value{Kind: engine.ValueF32, bits: uint64(math.Float32bits(v))} }

// F64 creates an f64 value.
func F64(v float64) Value { return Value{Kind: engine.ValueF64, bits: math.Float64bits(v)} }

// FromRaw wraps a raw slot returned by an engine call.
func FromRaw(kind engine.ValueKind, raw uint64) Value {
	return Value{Kind: kind, bits: raw}
}

// Raw returns the slot encoding passed to engine calls.
func (v Value) Raw() uint64 { return v.bits }

func (v Value) I32() int32   { return int32(uint32(v.bits)) }
func (v Value) I64() int64   { return int64(v.bits) }
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) F64() float64 { return math.Float64frombits(v.bits) }

func (v Value) String() string {
	switch v.Kind {
	case engine.ValueI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case engine.ValueI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case engine.ValueF32:
		return "f32:" + strconv.FormatFloat(float64(v.F32()), 'g', -1, 32)
	case engine.ValueF64:
		return "f64:" + strconv.FormatFloat(v.F64(), 'g', -1, 64)
	default:
		return fmt.Sprintf("%s:%#x", v.Kind, v.bits)
	}
}

// number is a host numeric value normalized to either an exact integer or
// a float.
type number struct {
	i      int64
	u      uint64
	f      float64
	isInt  bool
	isUint bool
}

func toNumber(host any) (number, bool) {
	switch n := host.(type) {
	case int:
		return number{i: int64(n), isInt: true}, true
	case int8:
		return number{i: int64(n), isInt: true}, true
	case int16:
		return number{i: int64(n), isInt: true}, true
	case int32:
		return number{i: int64(n), isInt: true}, true
	case int64:
		return number{i: n, isInt: true}, true
	case uint:
		return number{u: uint64(n), isUint: true}, true
	case uint8:
		return number{u: uint64(n), isUint: true}, true
	case uint16:
		return number{u: uint64(n), isUint: true}, true
	case uint32:
		return number{u: uint64(n), isUint: true}, true
	case uint64:
		return number{u: n, isUint: true}, true
	case float32:
		return number{f: float64(n)}, true
	case float64:
		return number{f: n}, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return number{i: i, isInt: true}, true
		}
		if f, err := n.Float64(); err == nil {
			return number{f: f}, true
		}
		return number{}, false
	default:
		return number{}, false
	}
}

func (n number) float() float64 {
	switch {
	case n.isInt:
		return float64(n.i)
	case n.isUint:
		return float64(n.u)
	default:
		return n.f
	}
}

const twoTo32 = 1 << 32

func (n number) toI32() int32 {
	switch {
	case n.isInt:
		return int32(n.i)
	case n.isUint:
		return int32(uint32(n.u))
	}
	if math.IsNaN(n.f) || math.IsInf(n.f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(n.f), twoTo32)
	if m < 0 {
		m += twoTo32
	}
	return int32(uint32(m))
}

func (n number) toI64() int64 {
	switch {
	case n.isInt:
		return n.i
	case n.isUint:
		if n.u > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(n.u)
	}
	if math.IsNaN(n.f) || math.IsInf(n.f, 0) {
		return 0
	}
	t := math.Trunc(n.f)
	// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
	if t >= math.MaxInt64 {
		return math.MaxInt64
	}
	if t <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(t)
}

// ToNative converts a host number to a value of the declared kind.
func ToNative(host any, kind engine.ValueKind) (Value, error) {
	n, ok := toNumber(host)
	if !ok {
		return Value{}, errors.Marshal(nil, host, fmt.Sprintf("expected a number for %s, got %T", kind, host))
	}

	switch kind {
	case engine.ValueI32:
		return I32(n.toI32()), nil
	case engine.ValueI64:
		return I64(n.toI64()), nil
	case engine.ValueF32:
		return F32(float32(n.float())), nil
	case engine.ValueF64:
		return F64(n.float()), nil
	default:
		return Value{}, unsupported(kind, host)
	}
}

// ToHost widens v to float64.
func ToHost(v Value) (float64, error) {
	switch v.Kind {
	case engine.ValueI32:
		return float64(v.I32()), nil
	case engine.ValueI64:
		return float64(v.I64()), nil
	case engine.ValueF32:
		return float64(v.F32()), nil
	case engine.ValueF64:
		return v.F64(), nil
	default:
		return 0, unsupported(v.Kind, nil)
	}
}

func unsupported(kind engine.ValueKind, value any) *errors.Error {
	return errors.Marshal(nil, value, fmt.Sprintf("unsupported value kind %s", kind))
}

// EncodeParams converts args to raw slots using the declared parameter kinds.
// The caller checks arity; a length mismatch here is an ArityMismatch.
func EncodeParams(args []any, kinds []engine.ValueKind) ([]uint64, error) {
	if len(args) != len(kinds) {
		return nil, errors.ArityMismatch(len(kinds), len(args))
	}

	raw := make([]uint64, len(args))
	for i, arg := range args {
		v, err := ToNative(arg, kinds[i])
		if err != nil {
			return nil, withPath(err, "args", strconv.Itoa(i))
		}
		raw[i] = v.Raw()
	}
	return raw, nil
}

// DecodeResults widens raw result slots using the declared result kinds.
func DecodeResults(raw []uint64, kinds []engine.ValueKind) ([]float64, error) {
	if len(raw) != len(kinds) {
		return nil, errors.New(errors.PhaseMarshal, errors.KindMarshal).
			Detail("engine returned %d results, %d declared", len(raw), len(kinds)).
			Counts(len(kinds), len(raw)).
			Build()
	}

	out := make([]float64, len(raw))
	for i, r := range raw {
		f, err := ToHost(FromRaw(kinds[i], r))
		if err != nil {
			return nil, withPath(err, "results", strconv.Itoa(i))
		}
		out[i] = f
	}
	return out, nil
}

func withPath(err error, path ...string) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = path
	}
	return err
}
