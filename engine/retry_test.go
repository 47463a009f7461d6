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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cloudspan/cloudspan/common"
)

func testPolicy() retryPolicy {
	return newRetryPolicy(Config{
		MaxAttempts:     3,
		RetryDelay:      2 * time.Second,
		MaxRetryDelay:   60 * time.Second,
		QuotaRetryDelay: 30 * time.Second,
	}.withDefaults())
}

func TestTransientRetriesUpToMaxAttempts(t *testing.T) {
	a := assert.New(t)
	p := testPolicy()

	_, again := p.shouldRetry(common.EErrorCode.Transient(), 1)
	a.True(again)
	_, again = p.shouldRetry(common.EErrorCode.Transient(), 2)
	a.True(again)
	_, again = p.shouldRetry(common.EErrorCode.Transient(), 3)
	a.False(again)
}

func TestQuotaExceededGetsOneLongRetry(t *testing.T) {
	a := assert.New(t)
	p := testPolicy()

	delay, again := p.shouldRetry(common.EErrorCode.QuotaExceeded(), 1)
	a.True(again)
	a.Equal(30*time.Second, delay)
	_, again = p.shouldRetry(common.EErrorCode.QuotaExceeded(), 2)
	a.False(again)
}

func TestPermanentCodesNeverRetry(t *testing.T) {
	a := assert.New(t)
	p := testPolicy()

	for _, code := range []common.ErrorCode{
		common.EErrorCode.NotFound(),
		common.EErrorCode.PermissionDenied(),
		common.EErrorCode.InvalidArgument(),
		common.EErrorCode.Conflict(),
		common.EErrorCode.Unavailable(),
	} {
		_, again := p.shouldRetry(code, 1)
		a.False(again, code.Tag())
	}
}

func TestBackoffGrowsAndStaysClamped(t *testing.T) {
	a := assert.New(t)
	p := testPolicy()

	// the jitter band is [0.8, 1.3); sample a few draws per attempt
	for attempt := int32(1); attempt <= 8; attempt++ {
		base := time.Duration((int64(1)<<uint(attempt-1))-1) * p.baseDelay
		if base == 0 {
			base = p.baseDelay / 2
		}
		for i := 0; i < 20; i++ {
			d := p.delay(attempt)
			a.Positive(d)
			a.LessOrEqual(d, p.maxDelay)
			if base < p.maxDelay {
				a.GreaterOrEqual(d, time.Duration(float32(base)*0.79))
			}
		}
	}
}
