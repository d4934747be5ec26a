// Package transcoder converts between host numbers and the engine's typed
// value representation.
//
// Conversion is driven entirely by the declared kind of the callee's
// parameter or result; host values are never inspected to guess a kind.
//
// # Host to native
//
// Accepted host values are Go integers, float32, float64 and json.Number.
// Anything else fails with errors.KindMarshal.
//
//	i32  truncate toward zero, wrap modulo 2^32; NaN and +-Inf become 0
//	i64  truncate toward zero, saturate at the int64 bounds; NaN and +-Inf become 0
//	f32  round to nearest float32
//	f64  as is
//
// Integer host values convert exactly (i32 wraps, i64 saturates only for
// uint64 values above math.MaxInt64).
//
// # Native to host
//
// Every kind widens to float64. i64 values beyond 2^53 lose precision.
//
// v128, funcref and externref have no host representation in either
// direction and fail with errors.KindMarshal.
package transcoder
