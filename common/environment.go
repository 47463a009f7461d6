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
	"strconv"
	"time"
)

type EnvironmentVariable struct {
	Name         string
	DefaultValue string
	Description  string
	Hidden       bool // the env command redacts the value unless --show-sensitive
}

var EEnvironmentVariable = EnvironmentVariable{}

// GetEnvironmentVariable reads the variable, falling back to its default.
func GetEnvironmentVariable(env EnvironmentVariable) string {
	value := os.Getenv(env.Name)
	if value == "" {
		return env.DefaultValue
	}
	return value
}

// GetEnvironmentVariableBool treats 1/t/T/TRUE/true/True as true, per strconv.
func GetEnvironmentVariableBool(env EnvironmentVariable) bool {
	b, err := strconv.ParseBool(GetEnvironmentVariable(env))
	return err == nil && b
}

func GetEnvironmentVariableInt(env EnvironmentVariable) int {
	v, err := strconv.Atoi(GetEnvironmentVariable(env))
	if err != nil {
		v, _ = strconv.Atoi(env.DefaultValue)
	}
	return v
}

func GetEnvironmentVariableFloat(env EnvironmentVariable) float64 {
	v, err := strconv.ParseFloat(GetEnvironmentVariable(env), 64)
	if err != nil {
		v, _ = strconv.ParseFloat(env.DefaultValue, 64)
	}
	return v
}

// GetEnvironmentVariableSeconds reads an integer second count as a duration.
func GetEnvironmentVariableSeconds(env EnvironmentVariable) time.Duration {
	return time.Duration(GetEnvironmentVariableInt(env)) * time.Second
}

// This list needs to be updated when a new public environment variable is added.
var VisibleEnvironmentVariables = []EnvironmentVariable{
	EEnvironmentVariable.ListenAddr(),
	EEnvironmentVariable.LogLocation(),
	EEnvironmentVariable.LogLevel(),
	EEnvironmentVariable.StoreKind(),
	EEnvironmentVariable.StoreLocation(),
	EEnvironmentVariable.StoreTableConnection(),
	EEnvironmentVariable.AWSEnabled(),
	EEnvironmentVariable.AWSCredentials(),
	EEnvironmentVariable.AWSDefaultContainer(),
	EEnvironmentVariable.AzureEnabled(),
	EEnvironmentVariable.AzureCredentials(),
	EEnvironmentVariable.AzureDefaultContainer(),
	EEnvironmentVariable.GCPEnabled(),
	EEnvironmentVariable.GCPCredentials(),
	EEnvironmentVariable.GCPDefaultContainer(),
	EEnvironmentVariable.MockEnabled(),
	EEnvironmentVariable.ClassifierMinSavings(),
	EEnvironmentVariable.ClassifierAccessWindowDays(),
	EEnvironmentVariable.PredictorModelPath(),
	EEnvironmentVariable.PricingFile(),
	EEnvironmentVariable.EngineMaxWorkers(),
	EEnvironmentVariable.EngineMaxAttempts(),
	EEnvironmentVariable.EnginePerRouteConcurrency(),
	EEnvironmentVariable.EnginePerJobParallelism(),
	EEnvironmentVariable.EngineReadyQueueCapacity(),
	EEnvironmentVariable.EngineFileDeadlineSeconds(),
	EEnvironmentVariable.EngineMaxActiveJobsPerOwner(),
	EEnvironmentVariable.EngineMaxFilesPerJob(),
	EEnvironmentVariable.EventsRingCapacity(),
	EEnvironmentVariable.EventsSubscriberQueue(),
	EEnvironmentVariable.EventsHeartbeatSeconds(),
	EEnvironmentVariable.AuthTokenTTLSeconds(),
	EEnvironmentVariable.AuthSigningKeyFile(),
	EEnvironmentVariable.CatalogRefreshSeconds(),
}

func (EnvironmentVariable) ListenAddr() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_LISTEN_ADDR",
		DefaultValue: "127.0.0.1:8337",
		Description:  "Address the control API listens on.",
	}
}

func (EnvironmentVariable) LogLocation() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_LOG_LOCATION",
		Description: "Overrides where the log files are stored, to avoid filling up a disk.",
	}
}

func (EnvironmentVariable) LogLevel() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_LOG_LEVEL",
		DefaultValue: "INFO",
		Description:  "Minimum severity written to log files: NONE, ERROR, WARNING, INFO or DEBUG.",
	}
}

func (EnvironmentVariable) StoreKind() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_STORE",
		DefaultValue: "file",
		Description:  "Durable store for jobs and principals: 'file' (the default) or 'azure-table'.",
	}
}

func (EnvironmentVariable) StoreLocation() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_STORE_LOCATION",
		Description: "Folder for the file store's job plans and principal records.",
	}
}

func (EnvironmentVariable) StoreTableConnection() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_STORE_TABLE_CONNECTION",
		Description: "Azure Storage connection string for the azure-table store.",
		Hidden:      true,
	}
}

func (EnvironmentVariable) AWSEnabled() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_PROVIDERS_AWS_ENABLED",
		DefaultValue: "false",
		Description:  "Enables the AWS S3 inventory source.",
	}
}

func (EnvironmentVariable) AWSCredentials() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_PROVIDERS_AWS_CREDENTIALS",
		Description: "Path to a credentials file holding endpoint, access key and secret for S3.",
		Hidden:      true,
	}
}

func (EnvironmentVariable) AWSDefaultContainer() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_PROVIDERS_AWS_CONTAINER",
		Description: "Bucket enumerated on catalog refresh for AWS.",
	}
}

func (EnvironmentVariable) AzureEnabled() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_PROVIDERS_AZURE_ENABLED",
		DefaultValue: "false",
		Description:  "Enables the Azure Blob inventory source.",
	}
}

func (EnvironmentVariable) AzureCredentials() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_PROVIDERS_AZURE_CREDENTIALS",
		Description: "Azure Storage account URL; authentication uses the default credential chain.",
		Hidden:      true,
	}
}

func (EnvironmentVariable) AzureDefaultContainer() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_PROVIDERS_AZURE_CONTAINER",
		Description: "Container enumerated on catalog refresh for Azure.",
	}
}

func (EnvironmentVariable) GCPEnabled() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_PROVIDERS_GCP_ENABLED",
		DefaultValue: "false",
		Description:  "Enables the Google Cloud Storage inventory source.",
	}
}

func (EnvironmentVariable) GCPCredentials() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_PROVIDERS_GCP_CREDENTIALS",
		Description: "Path to a Google service account JSON key.",
		Hidden:      true,
	}
}

func (EnvironmentVariable) GCPDefaultContainer() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_PROVIDERS_GCP_CONTAINER",
		Description: "Bucket enumerated on catalog refresh for GCP.",
	}
}

func (EnvironmentVariable) MockEnabled() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_PROVIDERS_MOCK_ENABLED",
		DefaultValue: "false",
		Description:  "Registers an in-memory provider seeded with demo objects; no cloud credentials needed.",
	}
}

func (EnvironmentVariable) ClassifierMinSavings() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_CLASSIFIER_MIN_SAVINGS",
		DefaultValue: "0.01",
		Description:  "Monthly savings (per object) below which no recommendation is emitted.",
	}
}

func (EnvironmentVariable) ClassifierAccessWindowDays() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_CLASSIFIER_ACCESS_WINDOW_DAYS",
		DefaultValue: "30",
		Description:  "Length in days of the rolling access-count window.",
	}
}

func (EnvironmentVariable) PredictorModelPath() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_PREDICTOR_MODEL",
		Description: "Path to the access predictor model artifact. SIGHUP reloads it.",
	}
}

func (EnvironmentVariable) PricingFile() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_PRICING_FILE",
		Description: "JSON price table overriding the built-in per-GiB-month storage prices.",
	}
}

func (EnvironmentVariable) EngineMaxWorkers() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_ENGINE_MAX_WORKERS",
		DefaultValue: "16",
		Description:  "Size of the migration worker pool (global concurrent file transfers).",
	}
}

func (EnvironmentVariable) EngineMaxAttempts() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_ENGINE_MAX_ATTEMPTS",
		DefaultValue: "3",
		Description:  "Attempts per file before a transient failure becomes permanent.",
	}
}

func (EnvironmentVariable) EnginePerRouteConcurrency() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_ENGINE_PER_ROUTE_CONCURRENCY",
		DefaultValue: "4",
		Description:  "Concurrent transfers allowed per (source provider, destination provider) route.",
	}
}

func (EnvironmentVariable) EnginePerJobParallelism() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_ENGINE_PER_JOB_PARALLELISM",
		DefaultValue: "3",
		Description:  "Concurrent transfers allowed within one job.",
	}
}

func (EnvironmentVariable) EngineReadyQueueCapacity() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_ENGINE_READY_QUEUE_CAPACITY",
		DefaultValue: "256",
		Description:  "Jobs admitted but not yet running; submissions beyond this fail as OVERLOADED.",
	}
}

func (EnvironmentVariable) EngineFileDeadlineSeconds() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_ENGINE_FILE_DEADLINE_SECONDS",
		DefaultValue: "60",
		Description:  "Deadline applied to each provider call during a file transfer.",
	}
}

func (EnvironmentVariable) EngineMaxActiveJobsPerOwner() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_ENGINE_MAX_ACTIVE_JOBS_PER_OWNER",
		DefaultValue: "8",
		Description:  "Pending plus running jobs one principal may hold.",
	}
}

func (EnvironmentVariable) EngineMaxFilesPerJob() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_ENGINE_MAX_FILES_PER_JOB",
		DefaultValue: "1000",
		Description:  "Upper bound on a migration request's file list.",
	}
}

func (EnvironmentVariable) EventsRingCapacity() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_EVENTS_RING_CAPACITY",
		DefaultValue: "1000",
		Description:  "Events retained for replay and /events/recent.",
	}
}

func (EnvironmentVariable) EventsSubscriberQueue() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_EVENTS_SUBSCRIBER_QUEUE",
		DefaultValue: "64",
		Description:  "Outbound queue per subscriber; the oldest queued event is dropped when full.",
	}
}

func (EnvironmentVariable) EventsHeartbeatSeconds() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_EVENTS_HEARTBEAT_SECONDS",
		DefaultValue: "15",
		Description:  "Interval between heartbeat frames on push connections.",
	}
}

func (EnvironmentVariable) AuthTokenTTLSeconds() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_AUTH_TOKEN_TTL_SECONDS",
		DefaultValue: "86400",
		Description:  "Bearer token lifetime.",
	}
}

func (EnvironmentVariable) AuthSigningKeyFile() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CLOUDSPAN_AUTH_SIGNING_KEY_FILE",
		Description: "Path to the token signing key. When unset an ephemeral key is generated; tokens then die with the process.",
		Hidden:      true,
	}
}

func (EnvironmentVariable) CatalogRefreshSeconds() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CLOUDSPAN_CATALOG_REFRESH_SECONDS",
		DefaultValue: "0",
		Description:  "Automatic catalog refresh interval; 0 disables the ticker.",
	}
}
