package calc

import (
	"context"
	"io"

	"calcrpc/rpc"
)

// Client is a typed client for the Calculator and Stats services.
type Client struct {
	rc *rpc.Client
}

// Dial connects to a calcrpc server.
func Dial(addr string) (*Client, error) {
	rc, err := rpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	return &Client{rc: rc}, nil
}

// NewClient wraps an established rpc client.
func NewClient(rc *rpc.Client) *Client {
	return &Client{rc: rc}
}

// RPC returns the underlying rpc client.
func (c *Client) RPC() *rpc.Client {
	return c.rc
}

func (c *Client) Close() error {
	return c.rc.Close()
}

func (c *Client) Add(ctx context.Context, x, y int64) (int64, error) {
	return c.binary(ctx, MethodAdd, x, y)
}

func (c *Client) Subtract(ctx context.Context, x, y int64) (int64, error) {
	return c.binary(ctx, MethodSubtract, x, y)
}

func (c *Client) Multiply(ctx context.Context, x, y int64) (int64, error) {
	return c.binary(ctx, MethodMultiply, x, y)
}

func (c *Client) binary(ctx context.Context, method string, x, y int64) (int64, error) {
	var out BinaryReply
	if err := c.rc.Call(ctx, method, &BinaryRequest{X: x, Y: y}, &out); err != nil {
		return 0, err
	}
	return out.Result, nil
}

func (c *Client) Power(ctx context.Context, base, exponent int64) (int64, error) {
	var out BinaryReply
	if err := c.rc.Call(ctx, MethodPower, &PowerRequest{Base: base, Exponent: exponent}, &out); err != nil {
		return 0, err
	}
	return out.Result, nil
}

// Divide returns the floor-division quotient and remainder of x by y.
func (c *Client) Divide(ctx context.Context, x, y int64) (quotient, remainder int64, err error) {
	var out DivideReply
	if err := c.rc.Call(ctx, MethodDivide, &BinaryRequest{X: x, Y: y}, &out); err != nil {
		return 0, 0, err
	}
	return out.Quotient, out.Remainder, nil
}

// Factorial streams the running factorial sequence for n, invoking fn for
// each element as it arrives. A non-nil error from fn aborts the stream;
// elements already received stay received.
func (c *Client) Factorial(ctx context.Context, n int64, fn func(FactorialStep) error) error {
	stream, err := c.rc.OpenStream(ctx, MethodFactorial, &FactorialRequest{N: n})
	if err != nil {
		return err
	}
	for {
		var step FactorialStep
		err := stream.Recv(&step)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(step); err != nil {
			stream.Close()
			return err
		}
	}
}

// DescriptiveStats streams the values to the server and returns the single
// summary reply.
func (c *Client) DescriptiveStats(ctx context.Context, values []float64) (*StatsReply, error) {
	stream, err := c.rc.OpenStream(ctx, MethodDescriptiveStats, nil)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if err := stream.Send(&Sample{V: v}); err != nil {
			return nil, err
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	var out StatsReply
	if err := stream.Result(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
