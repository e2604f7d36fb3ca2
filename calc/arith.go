package calc

import (
	"context"
	"time"

	"calcrpc/rpc"
)

// Arithmetic implements the Calculator methods. All integer arithmetic is
// int64 with two's-complement wraparound; results are exact while they fit.
type Arithmetic struct {
	// Pace, when positive, is slept between factorial elements so stream
	// progress is observable. Zero emits eagerly.
	Pace time.Duration
}

func (a *Arithmetic) Add(_ context.Context, req *BinaryRequest) (*BinaryReply, error) {
	return &BinaryReply{Result: req.X + req.Y}, nil
}

func (a *Arithmetic) Subtract(_ context.Context, req *BinaryRequest) (*BinaryReply, error) {
	return &BinaryReply{Result: req.X - req.Y}, nil
}

func (a *Arithmetic) Multiply(_ context.Context, req *BinaryRequest) (*BinaryReply, error) {
	return &BinaryReply{Result: req.X * req.Y}, nil
}

func (a *Arithmetic) Power(_ context.Context, req *PowerRequest) (*BinaryReply, error) {
	if req.Exponent < 0 {
		return nil, rpc.Errorf(rpc.StatusInvalidArgument, "negative exponent")
	}
	return &BinaryReply{Result: ipow(req.Base, req.Exponent)}, nil
}

func (a *Arithmetic) Divide(_ context.Context, req *BinaryRequest) (*DivideReply, error) {
	if req.Y == 0 {
		return nil, rpc.Errorf(rpc.StatusInvalidArgument, "division by zero")
	}
	q, r := floorDiv(req.X, req.Y)
	return &DivideReply{Quotient: q, Remainder: r}, nil
}

// Factorial streams (step, step!) pairs for step = 0..n, one element at a
// time in increasing step order. Elements already delivered stay delivered
// when the call is canceled mid-stream.
func (a *Arithmetic) Factorial(ctx context.Context, req *FactorialRequest, stream *rpc.Stream) error {
	if req.N < 0 {
		return rpc.Errorf(rpc.StatusInvalidArgument, "negative factorial is undefined")
	}
	acc := int64(1)
	for k := int64(0); k <= req.N; k++ {
		if k > 0 {
			acc *= k
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := stream.SendMsg(&FactorialStep{Step: k, Accumulator: acc}); err != nil {
			return err
		}
		if a.Pace > 0 && k < req.N {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.Pace):
			}
		}
	}
	return nil
}

// ipow is exact integer exponentiation by squaring, wrapping like the other
// operations. e must be non-negative.
func ipow(b, e int64) int64 {
	result := int64(1)
	for e > 0 {
		if e&1 == 1 {
			result *= b
		}
		b *= b
		e >>= 1
	}
	return result
}

// floorDiv returns floor-division quotient and remainder: the quotient
// rounds toward negative infinity and the remainder takes the divisor's
// sign, so q*y + r == x always holds.
func floorDiv(x, y int64) (q, r int64) {
	q, r = x/y, x%y
	if r != 0 && (r < 0) != (y < 0) {
		q--
		r += y
	}
	return q, r
}
