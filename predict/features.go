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

package predict

import (
	"math"
	"path"
	"strings"
	"time"

	"github.com/cloudspan/cloudspan/common"
)

// The feature schema is a contract with whatever trains the model artifact.
// Names, one-hot sets and ordering are fixed; adding a feature means a new
// model version, not an edit here.

// ContentHints is the closed set of content-type hints, one-hot encoded from
// the key's extension. Order matters: it is the vector layout.
var ContentHints = []string{"image", "video", "audio", "document", "archive", "data"}

// providerTags is the one-hot layout for the provider feature.
var providerTags = []common.Provider{
	common.EProvider.AWS(), common.EProvider.Azure(), common.EProvider.GCP(), common.EProvider.Mock(),
}

// FeatureNames lists every feature in vector order. The model file's weights
// are keyed by these names and validated against this list on load.
func FeatureNames() []string {
	names := []string{"size_bytes_log", "age_days", "days_since_last_access", "access_count_window"}
	for _, h := range ContentHints {
		names = append(names, "content_"+h)
	}
	names = append(names, "weekday_last_access", "hour_last_access")
	for _, p := range providerTags {
		names = append(names, "provider_"+strings.ToLower(p.String()))
	}
	return names
}

// Features encodes one catalog entry at a given instant. Pure: same entry and
// clock, same vector.
func Features(e common.CatalogEntry, now time.Time) []float64 {
	v := make([]float64, 0, len(FeatureNames()))
	v = append(v,
		math.Log1p(float64(e.SizeBytes)),
		e.AgeDays(now),
		e.AccessStats.DaysSinceLastAccess(e.ObjectRef, now),
		float64(e.AccessStats.AccessCountWindow),
	)
	hint := contentHint(e.Key)
	for _, h := range ContentHints {
		v = append(v, common.Iff(h == hint, 1.0, 0.0))
	}
	lastAccess := e.LastModified
	if e.AccessStats.LastAccessAt != nil {
		lastAccess = *e.AccessStats.LastAccessAt
	}
	v = append(v, float64(lastAccess.UTC().Weekday()), float64(lastAccess.UTC().Hour()))
	for _, p := range providerTags {
		v = append(v, common.Iff(p == e.Provider, 1.0, 0.0))
	}
	return v
}

func contentHint(key string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(key), ".")) {
	case "jpg", "jpeg", "png", "gif", "webp", "bmp", "tiff", "raw":
		return "image"
	case "mp4", "mov", "avi", "mkv", "webm":
		return "video"
	case "mp3", "wav", "flac", "aac", "ogg":
		return "audio"
	case "pdf", "doc", "docx", "txt", "md", "ppt", "pptx", "xls", "xlsx":
		return "document"
	case "zip", "gz", "tar", "bz2", "xz", "7z", "rar":
		return "archive"
	default:
		return "data"
	}
}
