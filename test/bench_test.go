package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"stream-rpc/message"
)

// Single goroutine, serial request-response calls.
func BenchmarkSerialCall(b *testing.B) {
	svr, cli := setupServerAndClient(b, "127.0.0.1:29090")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	in := message.New([]byte("hello"))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := cli.Call("upper", in); err != nil {
			b.Fatal(err)
		}
	}
}

// Concurrent calls sharing the connection pool.
func BenchmarkConcurrentCall(b *testing.B) {
	svr, cli := setupServerAndClient(b, "127.0.0.1:29091")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	in := message.New([]byte("hello"))
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := cli.Call("upper", in); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// Channel exchange throughput, 16 elements per exchange.
func BenchmarkChannel(b *testing.B) {
	svr, cli := setupServerAndClient(b, "127.0.0.1:29092")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		in := make(chan *message.Message, 16)
		var wg sync.WaitGroup
		wg.Add(1)

		replies, err := cli.Channel(context.Background(), "tag", in)
		if err != nil {
			b.Fatal(err)
		}

		go func() {
			defer wg.Done()
			for r := range replies {
				if r.Err != nil {
					b.Error(r.Err)
					return
				}
			}
		}()

		for j := 0; j < 16; j++ {
			in <- message.New([]byte("x"))
		}
		close(in)
		wg.Wait()
	}
}
