package calc

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"calcrpc/rpc"
)

// newTestClient starts a fully registered server on a loopback port and
// returns a typed client connected to it.
func newTestClient(t *testing.T, arith *Arithmetic) *Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := rpc.NewServer(ln.Addr().String())
	log := logrus.New()
	log.SetOutput(io.Discard)
	srv.Logger = log
	Register(srv, arith, &Stats{})
	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	c, err := Dial(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestServiceUnaryOps(t *testing.T) {
	c := newTestClient(t, &Arithmetic{})
	ctx := context.Background()

	if got, err := c.Add(ctx, 19, 23); err != nil || got != 42 {
		t.Fatalf("Add = %d, %v", got, err)
	}
	if got, err := c.Subtract(ctx, 19, 23); err != nil || got != -4 {
		t.Fatalf("Subtract = %d, %v", got, err)
	}
	if got, err := c.Multiply(ctx, -6, 7); err != nil || got != -42 {
		t.Fatalf("Multiply = %d, %v", got, err)
	}
	if got, err := c.Power(ctx, 3, 4); err != nil || got != 81 {
		t.Fatalf("Power = %d, %v", got, err)
	}
	q, r, err := c.Divide(ctx, -7, 2)
	if err != nil || q != -4 || r != 1 {
		t.Fatalf("Divide = (%d, %d), %v", q, r, err)
	}
}

func TestServiceInvalidArguments(t *testing.T) {
	c := newTestClient(t, &Arithmetic{})
	ctx := context.Background()

	if _, _, err := c.Divide(ctx, 1, 0); rpc.StatusOf(err) != rpc.StatusInvalidArgument {
		t.Fatalf("Divide by zero: got %v", err)
	}
	if _, err := c.Power(ctx, 2, -3); rpc.StatusOf(err) != rpc.StatusInvalidArgument {
		t.Fatalf("negative exponent: got %v", err)
	}
	err := c.Factorial(ctx, -1, func(FactorialStep) error { return nil })
	if rpc.StatusOf(err) != rpc.StatusInvalidArgument {
		t.Fatalf("negative factorial: got %v", err)
	}
}

func TestServiceFactorial(t *testing.T) {
	c := newTestClient(t, &Arithmetic{})
	want := []int64{1, 1, 2, 6, 24, 120, 720, 5040, 40320, 362880, 3628800}
	var steps []FactorialStep
	err := c.Factorial(context.Background(), 10, func(step FactorialStep) error {
		steps = append(steps, step)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != len(want) {
		t.Fatalf("got %d elements, want %d", len(steps), len(want))
	}
	for i, step := range steps {
		if step.Step != int64(i) || step.Accumulator != want[i] {
			t.Errorf("element %d: got (%d, %d), want (%d, %d)",
				i, step.Step, step.Accumulator, i, want[i])
		}
	}
}

func TestServiceFactorialZero(t *testing.T) {
	c := newTestClient(t, &Arithmetic{})
	n := 0
	err := c.Factorial(context.Background(), 0, func(step FactorialStep) error {
		if step.Step != 0 || step.Accumulator != 1 {
			t.Errorf("got (%d, %d)", step.Step, step.Accumulator)
		}
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("got %d elements", n)
	}
}

func TestServiceFactorialDeadline(t *testing.T) {
	// Pace the stream so the deadline lands mid-emission.
	c := newTestClient(t, &Arithmetic{Pace: 20 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	received := 0
	err := c.Factorial(ctx, 1000, func(FactorialStep) error {
		received++
		return nil
	})
	if rpc.StatusOf(err) != rpc.StatusDeadlineExceeded {
		t.Fatalf("got %v after %d elements", err, received)
	}
	if received == 0 {
		t.Fatal("expected elements before the deadline")
	}
	if received >= 1000 {
		t.Fatal("stream ran to completion despite the deadline")
	}
}

func TestServiceFactorialCancel(t *testing.T) {
	// A single worker slot: if the canceled stream kept its worker, the
	// follow-up call could never run.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := rpc.NewServer(ln.Addr().String())
	log := logrus.New()
	log.SetOutput(io.Discard)
	srv.Logger = log
	srv.PoolSize = 1
	Register(srv, &Arithmetic{Pace: 10 * time.Millisecond}, &Stats{})
	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	c, err := Dial(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := 0
	err = c.Factorial(ctx, 100000, func(FactorialStep) error {
		received++
		if received == 5 {
			cancel()
		}
		return nil
	})
	if rpc.StatusOf(err) != rpc.StatusCanceled {
		t.Fatalf("got %v after %d elements", err, received)
	}
	if received < 5 {
		t.Fatalf("canceled after %d elements", received)
	}

	// The worker is released within a bounded time; with one slot this call
	// would otherwise queue behind the abandoned stream for its full length.
	addCtx, addCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer addCancel()
	if got, err := c.Add(addCtx, 2, 2); err != nil || got != 4 {
		t.Fatalf("Add after cancel = %d, %v", got, err)
	}
}

func TestServiceFactorialStopEarly(t *testing.T) {
	// Returning an error from the callback closes the stream client-side;
	// no further elements are delivered.
	c := newTestClient(t, &Arithmetic{Pace: 5 * time.Millisecond})
	stop := errors.New("enough")
	received := 0
	err := c.Factorial(context.Background(), 1000, func(FactorialStep) error {
		received++
		if received == 3 {
			return stop
		}
		return nil
	})
	if err != stop {
		t.Fatalf("got %v", err)
	}
	if received != 3 {
		t.Fatalf("callback ran %d times", received)
	}
}

func TestServiceDescriptiveStats(t *testing.T) {
	c := newTestClient(t, &Arithmetic{})
	ctx := context.Background()

	reply, err := c.DescriptiveStats(ctx, []float64{2, 4, 4, 4, 5, 5, 7, 9})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(reply.Mean-5.0) > 1e-12 {
		t.Errorf("mean = %g, want 5", reply.Mean)
	}
	if want := 32.0 / 7.0; math.Abs(reply.Variance-want) > 1e-12 {
		t.Errorf("variance = %g, want %g", reply.Variance, want)
	}

	reply, err = c.DescriptiveStats(ctx, []float64{3.5})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Mean != 3.5 || reply.Variance != 0 {
		t.Errorf("single sample: got mean=%g variance=%g", reply.Mean, reply.Variance)
	}
}

func TestServiceDescriptiveStatsEmpty(t *testing.T) {
	c := newTestClient(t, &Arithmetic{})
	_, err := c.DescriptiveStats(context.Background(), nil)
	if rpc.StatusOf(err) != rpc.StatusInvalidArgument {
		t.Fatalf("got %v", err)
	}
}

func TestServiceConcurrentCalls(t *testing.T) {
	c := newTestClient(t, &Arithmetic{})
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			got, err := c.Add(context.Background(), i, i)
			if err == nil && got != 2*i {
				err = rpc.Errorf(rpc.StatusInternal, "Add(%d, %d) = %d", i, i, got)
			}
			errs <- err
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
}
