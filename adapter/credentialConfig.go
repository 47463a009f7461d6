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
	"encoding/json"
	"os"
	"strings"

	"github.com/cloudspan/cloudspan/common"
)

// S3CredentialInfo is the content of the file named by
// CLOUDSPAN_PROVIDERS_AWS_CREDENTIALS. Keeping key material in a file rather
// than the environment keeps it out of process listings and the env command.
type S3CredentialInfo struct {
	Endpoint     string `json:"endpoint"` // defaults to s3.amazonaws.com
	Region       string `json:"region"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	SessionToken string `json:"session_token,omitempty"`
	DisableTLS   bool   `json:"disable_tls,omitempty"` // local test endpoints only
}

func LoadS3CredentialInfo(path string) (S3CredentialInfo, error) {
	var info S3CredentialInfo
	raw, err := os.ReadFile(path)
	if err != nil {
		return info, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "load_credentials", err).
			WithProvider(common.EProvider.AWS())
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "load_credentials", err).
			WithProvider(common.EProvider.AWS())
	}
	if info.Endpoint == "" {
		info.Endpoint = "s3.amazonaws.com"
	}
	return info, nil
}

// AzureCredentialInfo comes straight from CLOUDSPAN_PROVIDERS_AZURE_CREDENTIALS.
// The value is either a storage account URL (token auth through the default
// credential chain) or a full connection string (shared key auth; required for
// presigning).
type AzureCredentialInfo struct {
	AccountURL       string
	ConnectionString string
}

func ParseAzureCredentialInfo(value string) AzureCredentialInfo {
	if strings.Contains(value, "AccountKey=") || strings.Contains(value, "SharedAccessSignature=") {
		return AzureCredentialInfo{ConnectionString: value}
	}
	return AzureCredentialInfo{AccountURL: value}
}

// GCPCredentialInfo names the service account key file. An empty path falls
// back to ambient credentials (GOOGLE_APPLICATION_CREDENTIALS or the metadata
// server), same as the SDK default.
type GCPCredentialInfo struct {
	KeyFilePath string
}
