package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"calcrpc/calc"
)

func opCmds() []*cobra.Command {
	return []*cobra.Command{
		binaryCmd("add", "Add two integers", (*calc.Client).Add),
		binaryCmd("sub", "Subtract y from x", (*calc.Client).Subtract),
		binaryCmd("mul", "Multiply two integers", (*calc.Client).Multiply),
		binaryCmd("pow", "Raise base to a non-negative exponent", (*calc.Client).Power),
		divCmd(),
		factorialCmd(),
		statsCmd(),
	}
}

func binaryCmd(
	name, short string,
	call func(*calc.Client, context.Context, int64, int64) (int64, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <x> <y>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := parseInts(args[0], args[1])
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := callCtx()
			defer cancel()
			start := time.Now()
			res, err := call(c, ctx, x, y)
			if err != nil {
				return err
			}
			fmt.Printf("%d\t(%.2f ms)\n", res, millis(start))
			return nil
		},
	}
}

func divCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "div <x> <y>",
		Short: "Floor-divide x by y, printing quotient and remainder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := parseInts(args[0], args[1])
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := callCtx()
			defer cancel()
			start := time.Now()
			q, r, err := c.Divide(ctx, x, y)
			if err != nil {
				return err
			}
			fmt.Printf("quotient=%d remainder=%d\t(%.2f ms)\n", q, r, millis(start))
			return nil
		},
	}
}

func factorialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "factorial <n>",
		Short: "Stream the factorials of 0..n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad integer %q", args[0])
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := callCtx()
			defer cancel()
			return c.Factorial(ctx, n, func(step calc.FactorialStep) error {
				fmt.Printf("%d! = %d\n", step.Step, step.Accumulator)
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <value>...",
		Short: "Compute the mean and sample variance of the given values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]float64, len(args))
			for i, a := range args {
				v, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("bad number %q", a)
				}
				values[i] = v
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := callCtx()
			defer cancel()
			reply, err := c.DescriptiveStats(ctx, values)
			if err != nil {
				return err
			}
			fmt.Printf("mean=%g variance=%g\n", reply.Mean, reply.Variance)
			return nil
		},
	}
}

func parseInts(a, b string) (int64, int64, error) {
	x, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad integer %q", a)
	}
	y, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad integer %q", b)
	}
	return x, y, nil
}

func millis(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
