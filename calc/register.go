package calc

import (
	"context"

	"calcrpc/rpc"
)

// Method names routed by the dispatcher.
const (
	MethodAdd              = "Calculator/Add"
	MethodSubtract         = "Calculator/Subtract"
	MethodMultiply         = "Calculator/Multiply"
	MethodPower            = "Calculator/Power"
	MethodDivide           = "Calculator/Divide"
	MethodFactorial        = "Calculator/Factorial"
	MethodDescriptiveStats = "Stats/DescriptiveStats"
)

// Register wires both services onto the server.
func Register(srv *rpc.Server, arith *Arithmetic, stats *Stats) {
	srv.Handle(MethodAdd, unary(arith.Add))
	srv.Handle(MethodSubtract, unary(arith.Subtract))
	srv.Handle(MethodMultiply, unary(arith.Multiply))
	srv.Handle(MethodPower, unary(arith.Power))
	srv.Handle(MethodDivide, unary(arith.Divide))
	srv.HandleStream(MethodFactorial, serverStream(arith.Factorial))
	srv.HandleStream(MethodDescriptiveStats, clientStream(stats.DescriptiveStats))
}

// unary adapts a typed method to an rpc.Handler: decode the request, invoke,
// encode the reply or map the error onto the response status.
func unary[Req, Resp any](fn func(context.Context, *Req) (*Resp, error)) rpc.Handler {
	return rpc.HandlerFunc(func(req *rpc.Request, resp *rpc.Response) {
		in := new(Req)
		if err := req.Decode(in); err != nil {
			resp.SetError(rpc.Errorf(rpc.StatusInvalidArgument, "malformed request: %v", err))
			return
		}
		out, err := fn(req.Context(), in)
		if err != nil {
			resp.SetError(err)
			return
		}
		if err := resp.Encode(out); err != nil {
			resp.SetError(err)
		}
	})
}

// serverStream adapts a typed producer: the request body is decoded before
// the handler runs, and a returned error closes the stream with its status
// before any further element is emitted.
func serverStream[Req any](fn func(context.Context, *Req, *rpc.Stream) error) rpc.StreamHandler {
	return rpc.StreamHandlerFunc(func(stream *rpc.Stream) {
		in := new(Req)
		if err := stream.Request().Decode(in); err != nil {
			stream.CloseError(rpc.Errorf(rpc.StatusInvalidArgument, "malformed request: %v", err))
			return
		}
		if err := fn(stream.Context(), in, stream); err != nil {
			stream.CloseError(err)
			return
		}
		stream.Close()
	})
}

// clientStream adapts a consumer that reads the caller's messages and closes
// the stream with its single reply.
func clientStream(fn func(*rpc.Stream) error) rpc.StreamHandler {
	return rpc.StreamHandlerFunc(func(stream *rpc.Stream) {
		if err := fn(stream); err != nil {
			stream.CloseError(err)
		}
	})
}
