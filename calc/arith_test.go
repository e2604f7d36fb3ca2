package calc

import (
	"context"
	"math"
	"testing"

	"calcrpc/rpc"
)

func TestAddSubtractMultiply(t *testing.T) {
	a := &Arithmetic{}
	ctx := context.Background()
	for _, tt := range []struct {
		op   string
		x, y int64
		want int64
	}{
		{"add", 2, 3, 5},
		{"add", -2, -3, -5},
		{"add", math.MaxInt64, 1, math.MinInt64},
		{"sub", 2, 3, -1},
		{"sub", math.MinInt64, 1, math.MaxInt64},
		{"mul", 7, -6, -42},
		{"mul", 0, math.MaxInt64, 0},
	} {
		req := &BinaryRequest{X: tt.x, Y: tt.y}
		var (
			reply *BinaryReply
			err   error
		)
		switch tt.op {
		case "add":
			reply, err = a.Add(ctx, req)
		case "sub":
			reply, err = a.Subtract(ctx, req)
		case "mul":
			reply, err = a.Multiply(ctx, req)
		}
		if err != nil {
			t.Fatalf("%s(%d, %d): %v", tt.op, tt.x, tt.y, err)
		}
		if reply.Result != tt.want {
			t.Errorf("%s(%d, %d) = %d, want %d", tt.op, tt.x, tt.y, reply.Result, tt.want)
		}
	}
}

func TestPower(t *testing.T) {
	a := &Arithmetic{}
	ctx := context.Background()
	for _, tt := range []struct {
		base, exp, want int64
	}{
		{2, 10, 1024},
		{0, 0, 1},
		{5, 0, 1},
		{0, 5, 0},
		{-2, 3, -8},
		{-2, 4, 16},
		{1, 1 << 40, 1},
	} {
		reply, err := a.Power(ctx, &PowerRequest{Base: tt.base, Exponent: tt.exp})
		if err != nil {
			t.Fatalf("Power(%d, %d): %v", tt.base, tt.exp, err)
		}
		if reply.Result != tt.want {
			t.Errorf("Power(%d, %d) = %d, want %d", tt.base, tt.exp, reply.Result, tt.want)
		}
	}
}

func TestPowerNegativeExponent(t *testing.T) {
	a := &Arithmetic{}
	_, err := a.Power(context.Background(), &PowerRequest{Base: 2, Exponent: -1})
	if rpc.StatusOf(err) != rpc.StatusInvalidArgument {
		t.Fatalf("got %v", err)
	}
}

func TestDivide(t *testing.T) {
	a := &Arithmetic{}
	ctx := context.Background()
	for _, tt := range []struct {
		x, y, q, r int64
	}{
		{7, 2, 3, 1},
		{-7, 2, -4, 1},
		{7, -2, -4, -1},
		{-7, -2, 3, -1},
		{6, 3, 2, 0},
		{-6, 3, -2, 0},
		{0, 5, 0, 0},
	} {
		reply, err := a.Divide(ctx, &BinaryRequest{X: tt.x, Y: tt.y})
		if err != nil {
			t.Fatalf("Divide(%d, %d): %v", tt.x, tt.y, err)
		}
		if reply.Quotient != tt.q || reply.Remainder != tt.r {
			t.Errorf("Divide(%d, %d) = (%d, %d), want (%d, %d)",
				tt.x, tt.y, reply.Quotient, reply.Remainder, tt.q, tt.r)
		}
		// The floor-division identity.
		if reply.Quotient*tt.y+reply.Remainder != tt.x {
			t.Errorf("Divide(%d, %d): q*y+r = %d",
				tt.x, tt.y, reply.Quotient*tt.y+reply.Remainder)
		}
	}
}

func TestDivideByZero(t *testing.T) {
	a := &Arithmetic{}
	_, err := a.Divide(context.Background(), &BinaryRequest{X: 1, Y: 0})
	if rpc.StatusOf(err) != rpc.StatusInvalidArgument {
		t.Fatalf("got %v", err)
	}
}
