// Package calc implements the Calculator and Stats services: unary
// arithmetic, a server-streaming factorial, and client-streaming
// descriptive statistics.
package calc

// BinaryRequest carries the operands of a two-argument operation.
type BinaryRequest struct {
	X int64 `msgpack:"x" json:"x"`
	Y int64 `msgpack:"y" json:"y"`
}

// BinaryReply carries the result of Add, Subtract, Multiply, or Power.
type BinaryReply struct {
	Result int64 `msgpack:"result" json:"result"`
}

// PowerRequest carries the base and exponent for Power.
type PowerRequest struct {
	Base     int64 `msgpack:"base" json:"base"`
	Exponent int64 `msgpack:"exponent" json:"exponent"`
}

// DivideReply carries floor-division results: Quotient*y + Remainder == x.
type DivideReply struct {
	Quotient  int64 `msgpack:"quotient" json:"quotient"`
	Remainder int64 `msgpack:"remainder" json:"remainder"`
}

// FactorialRequest asks for the running factorial sequence 0..N.
type FactorialRequest struct {
	N int64 `msgpack:"n" json:"n"`
}

// FactorialStep is one element of the factorial stream:
// Accumulator == Step!.
type FactorialStep struct {
	Step        int64 `msgpack:"step" json:"step"`
	Accumulator int64 `msgpack:"accumulator" json:"accumulator"`
}

// Sample is one element of a DescriptiveStats input stream.
type Sample struct {
	V float64 `msgpack:"v" json:"v"`
}

// StatsReply summarizes a sample stream. Variance is the sample variance
// (n-1 denominator) for more than one sample, exactly 0 otherwise.
type StatsReply struct {
	Mean     float64 `msgpack:"mean" json:"mean"`
	Variance float64 `msgpack:"variance" json:"variance"`
}
