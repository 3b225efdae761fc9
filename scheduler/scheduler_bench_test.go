package scheduler_test

import (
	"runtime"
	"sync"
	"testing"

	coro "github.com/joeycumines/gocoro"
	"github.com/joeycumines/gocoro/scheduler"
)

// BenchmarkScheduler_ClosureThroughput measures coroutines-per-second
// under a fixed worker count, the Go-native counterpart to
// original_source/tests/benchmark's scheduler throughput benchmark.
func BenchmarkScheduler_ClosureThroughput(b *testing.B) {
	s := scheduler.New(runtime.GOMAXPROCS(0), "bench")
	s.Start()
	defer s.Stop()

	var wg sync.WaitGroup
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		s.ScheduleClosure(func() { wg.Done() })
	}
	wg.Wait()
}

// BenchmarkScheduler_CoroutineYieldThroughput measures the cost of a
// single-yield coroutine round trip under the worker pool, exercising
// the pool's acquire/release path alongside the resume path.
func BenchmarkScheduler_CoroutineYieldThroughput(b *testing.B) {
	pool := coro.NewPool(1024, coro.DefaultStackSize)
	s := scheduler.New(runtime.GOMAXPROCS(0), "bench", scheduler.WithPool(pool))
	s.Start()
	defer s.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		done := make(chan struct{})
		c := pool.Acquire(func() {
			coro.Yield()
			close(done)
		})
		s.ScheduleCoroutine(c)
		go func(c *coro.Coroutine) {
			for c.State() != coro.Suspended {
				runtime.Gosched()
			}
			s.ScheduleCoroutine(c)
		}(c)
		<-done
	}
}

// BenchmarkScheduler_WorkerCounts sweeps worker-pool sizes to show
// throughput scaling, mirroring the original benchmark's "N OS threads"
// axis.
func BenchmarkScheduler_WorkerCounts(b *testing.B) {
	for _, workers := range []int{1, 2, 4, 8} {
		b.Run(itoa(workers), func(b *testing.B) {
			s := scheduler.New(workers, "bench")
			s.Start()
			defer s.Stop()

			var wg sync.WaitGroup
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				wg.Add(1)
				s.ScheduleClosure(func() { wg.Done() })
			}
			wg.Wait()
		})
	}
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%10]
		n /= 10
	}
	return string(buf[i:])
}
