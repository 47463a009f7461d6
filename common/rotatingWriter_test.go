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

package common

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRotatingWriterKeepsEveryByte(t *testing.T) {
	a := assert.New(t)

	tmpDir := t.TempDir()
	logFile := path.Join(tmpDir, "job.log")

	w, err := NewRotatingWriter(logFile, 64)
	a.NoError(err)

	// 10 writes of 20 bytes against a 64 byte cap forces several rotations
	line := strings.Repeat("x", 19) + "\n"
	for i := 0; i < 10; i++ {
		n, err := w.Write([]byte(line))
		a.NoError(err)
		a.Equal(20, n)
	}
	a.NoError(w.Close())

	entries, err := os.ReadDir(tmpDir)
	a.NoError(err)
	a.Greater(len(entries), 1, "expected at least one rotation")

	// no byte may be lost across rotations
	total := 0
	for _, e := range entries {
		a.True(strings.HasPrefix(e.Name(), "job"))
		a.True(strings.HasSuffix(e.Name(), ".log"))
		content, err := os.ReadFile(path.Join(tmpDir, e.Name()))
		a.NoError(err)
		total += len(content)
	}
	a.Equal(200, total)

	// the live file is always the undecorated name
	_, err = os.Stat(logFile)
	a.NoError(err)
}
