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
	"regexp"
	"strings"
)

type LogSanitizer interface {
	SanitizeLogMessage(raw string) string
}

// logSanitizer performs string-replacement based log redaction.
// This serves as a backstop, to help make sure that secrets don't get logged.
// It does search and replace of the types of credentials that are expected to
// pass through this application: SAS signatures and presigned-URL signatures
// inside URLs, bearer tokens inside Authorization material, and access keys.
// Request handling already redacts these from known headers and URLs, but they
// can still end up inside errors (e.g. HTTP errors), and if those errors are
// logged the secrets would leak into the logs without this filter.
type logSanitizer struct {
}

func NewLogSanitizer() LogSanitizer {
	return &logSanitizer{}
}

var sensitiveQueryStringKeys = []string{
	"sig",           // Azure SAS signature
	"signature",     // covers both "signature" and x-amz-signature
	"token",         // seems worth removing in case something uses it one day
	"credential",    // covers redacting x-amz-credential from logs
	"authorization", // bearer material copied into error strings
	"accesskey",     // S3-style key material in config errors
}

// SanitizeLogMessage removes credentials and credential-like strings that are
// expected to exist in material logged by this application.
// It does not remove whole headers; it removes signatures of the type found in
// SAS tokens and presigned URLs, plus several other things.
// The implementation uses a 'to lower' of the raw string, because the
// alternative (case-insensitive regexes on every message) measures much slower.
func (s *logSanitizer) SanitizeLogMessage(msg string) string {
	lowerMsg := strings.ToLower(msg)

	for _, key := range sensitiveQueryStringKeys {
		// take a quick look, using contains, and then get fancy only if we
		// find something in the quick look
		if strings.Contains(lowerMsg, key) {
			msg = s.redact(msg, key) // must redact from the real (original case) msg, not lowerMsg
		}
	}

	return msg
}

func (s *logSanitizer) redact(msg, key string) string {
	const redacted = "-REDACTED-"

	return sensitiveRegexMap[key].ReplaceAllString(msg, "$1"+redacted)
}

// this map is only written during init, so it is safe for concurrent reads
var sensitiveRegexMap = make(map[string]*regexp.Regexp)

// init a map of pre-prepared regexes, one for each key
func init() {
	for _, key := range sensitiveQueryStringKeys {
		// We don't care what's before the key (in a query string it will always be ? or &, but that's not
		// the case in say, an auth header).
		// Also, for flexibility and robustness we allow : or = as the delimiter, and allow space around it.
		// We do ASSUME that the value to be redacted will never contain a &.
		// Regex has two groups: first gets key and delimiter.
		// Second group gets as many chars as possible that do not terminate the value.
		sensitiveRegexMap[key] = regexp.MustCompile("(?i)(?P<key>" + key + "[ \t]*[:=][ \t]*)(?P<value>[^& ,;\t\n\r]+)")
	}
}
