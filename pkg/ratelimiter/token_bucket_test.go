package ratelimiter

import (
	"testing"
	"time"
)

func TestTokenBucketAllowsBurstUpToCapacity(t *testing.T) {
	tb := NewTokenBucket(1, 3)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("Request %d within capacity was rejected", i+1)
		}
	}
	if tb.Allow() {
		t.Error("Request beyond capacity was allowed")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(100, 1)

	if !tb.Allow() {
		t.Fatal("First request was rejected")
	}
	if tb.Allow() {
		t.Fatal("Empty bucket allowed a request")
	}

	// At 100 tokens/s a token is back within ~10ms.
	time.Sleep(30 * time.Millisecond)
	if !tb.Allow() {
		t.Error("Bucket did not refill")
	}
}
