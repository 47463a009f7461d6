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
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const DefaultFilePerm = 0644

// rotatingWriter caps a log file's size. When a write would push the current
// file past maxSize, the file is renamed with an incrementing suffix and a
// fresh one is opened in its place. Writers never block each other for long;
// rotation holds the lock only for the rename + reopen.
type rotatingWriter struct {
	filePath string
	maxSize  uint64

	mu          sync.Mutex
	file        *os.File
	currentSize uint64
	suffix      int
}

func NewRotatingWriter(filePath string, maxSize uint64) (io.WriteCloser, error) {
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, DefaultFilePerm)
	if err != nil {
		return nil, err
	}

	return &rotatingWriter{
		file:     file,
		filePath: filePath,
		maxSize:  maxSize,
	}, nil
}

// rotate must be called with mu held.
func (w *rotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	rotatedName := strings.TrimSuffix(w.filePath, ".log") + fmt.Sprintf(".%d.log", w.suffix)
	if err := os.Rename(w.filePath, rotatedName); err != nil {
		return err
	}

	w.suffix++
	w.currentSize = 0

	file, err := os.OpenFile(w.filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, DefaultFilePerm)
	if err != nil {
		return err
	}
	w.file = file
	return nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentSize+uint64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	w.currentSize += uint64(len(p))
	return w.file.Write(p)
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
