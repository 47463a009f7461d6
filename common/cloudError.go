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
	"errors"
	"fmt"
)

// ErrorDetail is the wire form of a classified failure: the uniform code plus a
// human-readable message. Messages must never contain credentials; adapters are
// responsible for building them from non-secret material only.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (d ErrorDetail) String() string {
	return d.Code.Tag() + ": " + d.Message
}

// CloudError carries a classified provider or engine failure across component
// boundaries. The classification happens exactly once, at the adapter boundary;
// everything above only ever switches on the code.
type CloudError struct {
	code     ErrorCode
	op       string // the operation that failed, e.g. "stat", "copy_object"
	provider Provider
	ref      string // the object or resource involved, if any
	msg      string
	cause    error
}

func NewCloudError(code ErrorCode, op string, msg string) *CloudError {
	return &CloudError{code: code, op: op, msg: msg}
}

func WrapCloudError(code ErrorCode, op string, cause error) *CloudError {
	return &CloudError{code: code, op: op, cause: cause}
}

// WithProvider and WithRef attach context without changing the classification.
func (e *CloudError) WithProvider(p Provider) *CloudError { e.provider = p; return e }
func (e *CloudError) WithRef(ref string) *CloudError      { e.ref = ref; return e }

func (e *CloudError) Code() ErrorCode { return e.code }

func (e *CloudError) Error() string {
	s := e.code.Tag()
	if e.provider != EProvider.None() {
		s += " " + e.provider.Tag()
	}
	if e.op != "" {
		s += " " + e.op
	}
	if e.ref != "" {
		s += " " + e.ref
	}
	if e.msg != "" {
		s += ": " + e.msg
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *CloudError) Unwrap() error { return e.cause }

// Cause exists for callers that still walk github.com/pkg/errors chains.
func (e *CloudError) Cause() error { return e.cause }

func (e *CloudError) Detail() ErrorDetail {
	msg := e.msg
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if e.op != "" {
		msg = fmt.Sprintf("%s: %s", e.op, msg)
	}
	return ErrorDetail{Code: e.code, Message: msg}
}

// CodeOf extracts the classification from anywhere in an error chain. Errors
// that never passed an adapter boundary surface as Transient so the retry
// policy gets a chance; persistent ones will keep coming back.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return EErrorCode.None()
	}
	var ce *CloudError
	if errors.As(err, &ce) {
		return ce.code
	}
	return EErrorCode.Transient()
}

// DetailOf folds any error into the wire form.
func DetailOf(err error) ErrorDetail {
	if err == nil {
		return ErrorDetail{}
	}
	var ce *CloudError
	if errors.As(err, &ce) {
		return ce.Detail()
	}
	return ErrorDetail{Code: EErrorCode.Transient(), Message: err.Error()}
}

type causer interface {
	Cause() error
}

// RootCause walks all the preceding errors and returns the originating error.
// An error with no recorded cause is its own root.
func RootCause(err error) error {
	for err != nil {
		cause, ok := err.(causer)
		if !ok || cause.Cause() == nil {
			break
		}
		err = cause.Cause()
	}
	return err
}
