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

package adapter

import (
	"strings"

	"github.com/cloudspan/cloudspan/common"
)

// Each provider names its storage classes differently; the catalog and the
// classifier only ever reason about Tier. These two maps are the sole place
// where provider class names exist.

// StorageClassFor returns the provider-native class representing a tier.
// Every supported provider offers all four temperatures.
func StorageClassFor(p common.Provider, t common.Tier) string {
	switch p {
	case common.EProvider.AWS():
		switch t {
		case common.ETier.Hot():
			return "STANDARD"
		case common.ETier.Warm():
			return "STANDARD_IA"
		case common.ETier.Cold():
			return "GLACIER"
		case common.ETier.Archive():
			return "DEEP_ARCHIVE"
		}
	case common.EProvider.Azure():
		switch t {
		case common.ETier.Hot():
			return "Hot"
		case common.ETier.Warm():
			return "Cool"
		case common.ETier.Cold():
			return "Cold"
		case common.ETier.Archive():
			return "Archive"
		}
	case common.EProvider.GCP():
		switch t {
		case common.ETier.Hot():
			return "STANDARD"
		case common.ETier.Warm():
			return "NEARLINE"
		case common.ETier.Cold():
			return "COLDLINE"
		case common.ETier.Archive():
			return "ARCHIVE"
		}
	case common.EProvider.Mock():
		return t.Tag()
	}
	return ""
}

// TierFromStorageClass folds a provider-native class back to a temperature.
// Unknown or empty classes are treated as the provider default, Hot.
func TierFromStorageClass(p common.Provider, class string) common.Tier {
	if class == "" {
		return common.ETier.Hot()
	}
	switch p {
	case common.EProvider.AWS():
		switch strings.ToUpper(class) {
		case "STANDARD", "EXPRESS_ONEZONE", "REDUCED_REDUNDANCY":
			return common.ETier.Hot()
		case "STANDARD_IA", "ONEZONE_IA", "INTELLIGENT_TIERING":
			return common.ETier.Warm()
		case "GLACIER", "GLACIER_IR":
			return common.ETier.Cold()
		case "DEEP_ARCHIVE":
			return common.ETier.Archive()
		}
	case common.EProvider.Azure():
		switch strings.ToLower(class) {
		case "hot", "premium":
			return common.ETier.Hot()
		case "cool":
			return common.ETier.Warm()
		case "cold":
			return common.ETier.Cold()
		case "archive":
			return common.ETier.Archive()
		}
	case common.EProvider.GCP():
		switch strings.ToUpper(class) {
		case "STANDARD", "MULTI_REGIONAL", "REGIONAL":
			return common.ETier.Hot()
		case "NEARLINE", "DURABLE_REDUCED_AVAILABILITY":
			return common.ETier.Warm()
		case "COLDLINE":
			return common.ETier.Cold()
		case "ARCHIVE":
			return common.ETier.Archive()
		}
	case common.EProvider.Mock():
		var t common.Tier
		if err := t.Parse(class); err == nil {
			return t
		}
	}
	return common.ETier.Hot()
}
