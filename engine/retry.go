// Copyright © 2024 CloudSpan <oss@cloudspan.dev>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package engine

import (
	"math/rand"
	"time"

	"github.com/cloudspan/cloudspan/common"
)

// retryPolicy decides whether a failed file attempt gets another go, and
// after how long. TRANSIENT backs off exponentially up to MaxAttempts;
// QUOTA_EXCEEDED gets exactly one more try after a single long delay;
// everything else, UNAVAILABLE included, is permanent on the first failure.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	quotaDelay  time.Duration
}

func newRetryPolicy(cfg Config) retryPolicy {
	return retryPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryDelay,
		maxDelay:    cfg.MaxRetryDelay,
		quotaDelay:  cfg.QuotaRetryDelay,
	}
}

// shouldRetry reports whether the attempt that just failed (1-based) earns
// another, and the delay to wait first.
func (p retryPolicy) shouldRetry(code common.ErrorCode, attempt int32) (time.Duration, bool) {
	switch {
	case code == common.EErrorCode.QuotaExceeded():
		if attempt >= 2 {
			return 0, false
		}
		return p.quotaDelay, true
	case code.Retryable():
		if int(attempt) >= p.maxAttempts {
			return 0, false
		}
		return p.delay(attempt), true
	default:
		return 0, false
	}
}

// delay grows (2^(attempt-1) - 1) * base, jittered into [0.8, 1.3) of itself,
// and clamped to maxDelay.
func (p retryPolicy) delay(attempt int32) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	pow := time.Duration((int64(1) << uint(attempt-1)) - 1) // 0, 1, 3, 7, ...
	d := pow * p.baseDelay
	if d == 0 {
		d = p.baseDelay / 2
	}
	d = time.Duration(float32(d) * (rand.Float32()/2 + 0.8))
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}
