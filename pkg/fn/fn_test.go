package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResult(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	if v, err := r.Unwrap(); v != 42 || err != nil {
		t.Fatalf("wrong unwrap: %d, %v", v, err)
	}

	boom := errors.New("boom")
	e := FromPair(0, boom)
	if e.IsOk() || !errors.Is(e.Error(), boom) {
		t.Fatalf("expected failed result, got %+v", e)
	}
	if FromPair("x", nil).Error() != nil {
		t.Fatal("expected nil error")
	}
}

func fastRetry(attempts int) RetryOpts {
	return RetryOpts{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		opts      RetryOpts
		failFirst int
		err       error
		wantCalls int
		wantOK    bool
	}{
		{"first try", fastRetry(3), 0, errors.New("x"), 1, true},
		{"succeeds on third", fastRetry(3), 2, errors.New("x"), 3, true},
		{"exhausted", fastRetry(2), 5, errors.New("x"), 2, false},
		{"cancellation is final", fastRetry(5), 5, context.Canceled, 1, false},
		{"attempt deadline is retried", fastRetry(3), 1, context.DeadlineExceeded, 2, true},
		{"zero attempts means one", fastRetry(0), 5, errors.New("x"), 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			r := Retry(context.Background(), tt.opts, func(context.Context) Result[int] {
				calls++
				if calls <= tt.failFirst {
					return Err[int](tt.err)
				}
				return Ok(calls)
			})
			if calls != tt.wantCalls || r.IsOk() != tt.wantOK {
				t.Fatalf("calls=%d ok=%v, want calls=%d ok=%v", calls, r.IsOk(), tt.wantCalls, tt.wantOK)
			}
		})
	}
}

func TestRetryNotRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	opts := fastRetry(5)
	opts.Retryable = func(err error) bool { return !errors.Is(err, permanent) }
	calls := 0
	Retry(context.Background(), opts, func(context.Context) Result[struct{}] {
		calls++
		return Err[struct{}](permanent)
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour}
	r := Retry(ctx, opts, func(context.Context) Result[int] {
		cancel()
		return Err[int](errors.New("x"))
	})
	if !errors.Is(r.Error(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", r.Error())
	}
}

func TestBackoffCapped(t *testing.T) {
	opts := RetryOpts{InitialWait: time.Second, MaxWait: 4 * time.Second}
	for n, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second} {
		if got := opts.backoff(n); got != want {
			t.Fatalf("backoff(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestSlices(t *testing.T) {
	doubled := Map([]int{1, 2, 3}, func(v int) int { return v * 2 })
	if len(doubled) != 3 || doubled[2] != 6 {
		t.Fatalf("Map: %v", doubled)
	}

	groups := GroupBy([]string{"ab", "ac", "b"}, func(s string) byte { return s[0] })
	if len(groups['a']) != 2 || len(groups['b']) != 1 {
		t.Fatalf("GroupBy: %v", groups)
	}

	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("Chunk: %v", chunks)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("Chunk with n=0 should be nil")
	}
}
