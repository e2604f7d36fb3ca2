package calc

import (
	"io"

	"calcrpc/rpc"
)

// Stats implements the Stats service.
type Stats struct{}

// DescriptiveStats consumes the caller's sample stream until end-of-input,
// then closes the stream with a single summary reply. Accumulation is
// single-pass (Welford), so the sample count is unbounded.
func (s *Stats) DescriptiveStats(stream *rpc.Stream) error {
	var n, mean, m2 float64
	for {
		var smp Sample
		err := stream.RecvMsg(&smp)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		n++
		d := smp.V - mean
		mean += d / n
		m2 += d * (smp.V - mean)
	}
	if n == 0 {
		return rpc.Errorf(rpc.StatusInvalidArgument, "no values supplied")
	}
	variance := 0.0
	if n > 1 {
		variance = m2 / (n - 1)
	}
	return stream.CloseOK(&StatsReply{Mean: mean, Variance: variance})
}
