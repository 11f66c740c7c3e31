package pack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/objpack/internal/testsupport"
)

func Test_Throttle_Sleeps_Proportional_To_Iteration_Time(t *testing.T) {
	t.Parallel()

	clk := testsupport.NewFakeClock()
	th := NewThrottleForTesting(2.0, clk)

	th.StartIteration()
	clk.Advance(10 * time.Millisecond)
	th.Wait()

	require.Equal(t, []time.Duration{20 * time.Millisecond}, clk.Slept)
}

func Test_Throttle_With_Zero_Multiplier_Never_Sleeps(t *testing.T) {
	t.Parallel()

	clk := testsupport.NewFakeClock()
	th := NewThrottleForTesting(0, clk)

	th.StartIteration()
	clk.Advance(time.Second)
	th.Wait()

	require.Empty(t, clk.Slept)
}

func Test_Throttle_Does_Not_Sleep_For_Zero_Elapsed_Time(t *testing.T) {
	t.Parallel()

	clk := testsupport.NewFakeClock()
	th := NewThrottleForTesting(3.0, clk)

	th.StartIteration()
	th.Wait()

	require.Empty(t, clk.Slept)
}
