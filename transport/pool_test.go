package transport

import (
	"errors"
	"net"
	"testing"
	"time"
)

// A failed dial must not poison the address pool: every subsequent Get
// retries the dial instead of blocking on an empty pool.
func TestPoolGetRetriesAfterDialFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	pool := NewPool(2, func(addr string) (net.Conn, error) {
		return nil, dialErr
	})

	if _, err := pool.Get("127.0.0.1:1"); !errors.Is(err, dialErr) {
		t.Fatalf("expect the dial error, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := pool.Get("127.0.0.1:1")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, dialErr) {
			t.Fatalf("expect the dial error again, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Get blocked after a failed initial dial")
	}
}

// Once the target becomes reachable, the same address pool recovers.
func TestPoolGetRecoversAfterDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	failing := true
	pool := NewPool(2, func(addr string) (net.Conn, error) {
		if failing {
			return nil, errors.New("connection refused")
		}
		return net.Dial("tcp", addr)
	})

	addr := ln.Addr().String()
	if _, err := pool.Get(addr); err == nil {
		t.Fatal("expect the first Get to fail")
	}

	failing = false
	tr, err := pool.Get(addr)
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(addr, tr)
	pool.Close()
}

// At capacity, Get blocks until a transport is returned.
func TestPoolGetBlocksAtCapacity(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	pool := NewPool(1, nil)
	addr := ln.Addr().String()

	tr, err := pool.Get(addr)
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan *Transport, 1)
	go func() {
		t2, _ := pool.Get(addr)
		got <- t2
	}()

	select {
	case <-got:
		t.Fatal("Get must block while the only transport is checked out")
	case <-time.After(100 * time.Millisecond):
	}

	pool.Put(addr, tr)

	select {
	case t2 := <-got:
		pool.Put(addr, t2)
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not wake up after Put")
	}

	pool.Close()
}
