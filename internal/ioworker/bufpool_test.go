package ioworker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufPoolGetSizesUpToBucket(t *testing.T) {
	p := newBufPool()
	for _, want := range []int{1, size4k, size4k + 1, size16k, size64k + 1, size1m} {
		buf := p.Get(want)
		assert.Len(t, buf, want)
		p.Put(buf)
	}
}

func TestBufPoolPutReuses(t *testing.T) {
	p := newBufPool()
	buf := p.Get(size4k)
	addr := &buf[0]
	p.Put(buf)

	// sync.Pool reuse isn't guaranteed between calls, but on a warm,
	// single-goroutine pool with no intervening GC it should hold.
	got := p.Get(size4k)
	if &got[0] == addr {
		t.Log("buffer was reused from the pool")
	} else {
		t.Log("buffer was not reused (sync.Pool GC behavior)")
	}
}

func TestBufPoolPutNonBucketCapIsDropped(t *testing.T) {
	p := newBufPool()
	buf := make([]byte, 100*1024) // not a bucket size; must not panic
	p.Put(buf)
}
