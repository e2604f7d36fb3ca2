package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"calcrpc/calc"
)

const menuText = `
 1) add        2) subtract   3) multiply
 4) divide     5) power      6) factorial
 7) stats      q) quit
`

func menuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive session against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			runMenu(c, bufio.NewScanner(os.Stdin))
			return nil
		},
	}
}

func runMenu(c *calc.Client, in *bufio.Scanner) {
	fmt.Printf("connected to %s\n", serverAddr)
	for {
		fmt.Print(menuText, "> ")
		if !in.Scan() {
			fmt.Println()
			return
		}
		choice := strings.TrimSpace(in.Text())
		switch choice {
		case "q", "quit", "exit":
			return
		case "1", "2", "3", "4", "5":
			menuBinary(c, in, choice)
		case "6":
			menuFactorial(c, in)
		case "7":
			menuStats(c, in)
		case "":
		default:
			fmt.Println("unknown choice", choice)
		}
	}
}

func menuBinary(c *calc.Client, in *bufio.Scanner, choice string) {
	x, ok := promptInt(in, "x")
	if !ok {
		return
	}
	y, ok := promptInt(in, "y")
	if !ok {
		return
	}
	ctx, cancel := callCtx()
	defer cancel()
	start := time.Now()
	var (
		res, rem int64
		err      error
		isDiv    bool
	)
	switch choice {
	case "1":
		res, err = c.Add(ctx, x, y)
	case "2":
		res, err = c.Subtract(ctx, x, y)
	case "3":
		res, err = c.Multiply(ctx, x, y)
	case "4":
		res, rem, err = c.Divide(ctx, x, y)
		isDiv = true
	case "5":
		res, err = c.Power(ctx, x, y)
	}
	if err != nil {
		fmt.Println("error:", explain(err))
		return
	}
	if isDiv {
		fmt.Printf("quotient=%d remainder=%d\t(%.2f ms)\n", res, rem, millis(start))
	} else {
		fmt.Printf("= %d\t(%.2f ms)\n", res, millis(start))
	}
}

func menuFactorial(c *calc.Client, in *bufio.Scanner) {
	n, ok := promptInt(in, "n")
	if !ok {
		return
	}
	ctx, cancel := callCtx()
	defer cancel()
	err := c.Factorial(ctx, n, func(step calc.FactorialStep) error {
		fmt.Printf("%d! = %d\n", step.Step, step.Accumulator)
		return nil
	})
	if err != nil {
		fmt.Println("error:", explain(err))
	}
}

func menuStats(c *calc.Client, in *bufio.Scanner) {
	fmt.Print("values (space-separated): ")
	if !in.Scan() {
		return
	}
	fields := strings.Fields(in.Text())
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			fmt.Printf("skipping %q: not a number\n", f)
			continue
		}
		values = append(values, v)
	}
	ctx, cancel := callCtx()
	defer cancel()
	start := time.Now()
	reply, err := c.DescriptiveStats(ctx, values)
	if err != nil {
		fmt.Println("error:", explain(err))
		return
	}
	fmt.Printf("mean=%g variance=%g\t(%.2f ms)\n", reply.Mean, reply.Variance, millis(start))
}

func promptInt(in *bufio.Scanner, name string) (int64, bool) {
	fmt.Printf("%s: ", name)
	if !in.Scan() {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(in.Text()), 10, 64)
	if err != nil {
		fmt.Println("not an integer:", in.Text())
		return 0, false
	}
	return n, true
}
