package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"stream-rpc/function"
	"stream-rpc/message"
	"stream-rpc/protocol"
	"stream-rpc/server"
)

func startServer(t *testing.T, addr string) {
	t.Helper()
	svr := server.NewServer()

	upper := function.NewMapper("upper", func(ctx context.Context, in *message.Message) (*message.Message, error) {
		return message.New(bytes.ToUpper(in.Body)), nil
	})
	split := function.NewImperative("split", func(ctx context.Context, in *message.Message) ([]*message.Message, error) {
		var outs []*message.Message
		for _, part := range strings.Split(string(in.Body), ",") {
			outs = append(outs, message.New([]byte(part)))
		}
		return outs, nil
	})
	echo := function.NewReactive("echoStream", func(ctx context.Context, in <-chan *message.Message) <-chan *message.Message {
		out := make(chan *message.Message)
		go func() {
			defer close(out)
			for m := range in {
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out
	})

	for _, h := range []*function.Handle{upper, split, echo} {
		if err := svr.Register(h); err != nil {
			t.Fatal(err)
		}
	}
	go svr.Serve("tcp", addr, "", nil)
	time.Sleep(100 * time.Millisecond)
}

func dialTransport(t *testing.T, addr string) *Transport {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	return NewTransport(conn)
}

// Serial request-response exchanges over one connection.
func TestTransportSerial(t *testing.T) {
	startServer(t, ":9001")
	tr := dialTransport(t, ":9001")
	defer tr.Close()

	for _, body := range []string{"one", "two", "three"} {
		events, err := tr.RequestResponse("upper", &protocol.Payload{Data: []byte(body)})
		if err != nil {
			t.Fatal(err)
		}

		ev := <-events
		if ev.Err != nil {
			t.Fatalf("server error: %v", ev.Err)
		}
		if got, want := string(ev.Payload.Data), strings.ToUpper(body); got != want {
			t.Fatalf("expect %q, got %q", want, got)
		}
	}
}

// Concurrent exchanges over one connection — the multiplexing core test.
func TestTransportConcurrent(t *testing.T) {
	startServer(t, ":9002")
	tr := dialTransport(t, ":9002")
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			body := fmt.Sprintf("req-%d", n)
			events, err := tr.RequestResponse("upper", &protocol.Payload{Data: []byte(body)})
			if err != nil {
				t.Errorf("open failed: %v", err)
				return
			}

			ev := <-events
			if ev.Err != nil {
				t.Errorf("server error: %v", ev.Err)
				return
			}
			if got, want := string(ev.Payload.Data), strings.ToUpper(body); got != want {
				t.Errorf("expect %q, got %q", want, got)
			}
		}(i)
	}

	wg.Wait()
}

func TestTransportRequestStream(t *testing.T) {
	startServer(t, ":9003")
	tr := dialTransport(t, ":9003")
	defer tr.Close()

	events, err := tr.RequestStream("split", &protocol.Payload{Data: []byte("a,b,c")})
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("server error: %v", ev.Err)
		}
		got = append(got, string(ev.Payload.Data))
	}

	if strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("expect a,b,c, got %s", strings.Join(got, ","))
	}
}

func TestTransportRequestChannel(t *testing.T) {
	startServer(t, ":9004")
	tr := dialTransport(t, ":9004")
	defer tr.Close()

	sender, events, err := tr.RequestChannel("echoStream", &protocol.Payload{Data: []byte("u1")})
	if err != nil {
		t.Fatal(err)
	}

	if err := sender.Send(&protocol.Payload{Data: []byte("u2")}); err != nil {
		t.Fatal(err)
	}
	if err := sender.Complete(); err != nil {
		t.Fatal(err)
	}

	var got []string
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("server error: %v", ev.Err)
		}
		got = append(got, string(ev.Payload.Data))
	}

	if strings.Join(got, ",") != "u1,u2" {
		t.Fatalf("expect u1,u2, got %s", strings.Join(got, ","))
	}
}

// Cancelling a channel exchange terminates the event stream without an
// error event.
func TestTransportRequestChannelCancel(t *testing.T) {
	startServer(t, ":9005")
	tr := dialTransport(t, ":9005")
	defer tr.Close()

	sender, events, err := tr.RequestChannel("echoStream", &protocol.Payload{Data: []byte("u1")})
	if err != nil {
		t.Fatal(err)
	}

	ev := <-events
	if ev.Err != nil || string(ev.Payload.Data) != "u1" {
		t.Fatalf("first event mismatch: %+v", ev)
	}

	if err := sender.Cancel(); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return // closed without error — done
			}
			if ev.Err != nil {
				t.Fatalf("cancelled exchange must terminate without error, got %v", ev.Err)
			}
		case <-timeout:
			t.Fatal("timed out waiting for the cancelled stream to close")
		}
	}
}
