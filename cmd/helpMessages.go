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

package cmd

// ===================================== ROOT COMMAND ===================================== //
const rootCmdShortDescription = "CloudSpan is a multi-cloud storage orchestrator."

const rootCmdLongDescription = `CloudSpan keeps an inventory of objects across AWS S3, Azure Blob and Google
Cloud Storage, recommends cheaper storage tiers based on observed and
predicted access, and runs verified cross-cloud migration jobs. All
functionality is exposed over an authenticated HTTP control API started with
'cloudspan serve'; configuration comes from CLOUDSPAN_* environment variables,
listed by 'cloudspan env'.`

// ===================================== SERVE COMMAND ===================================== //
const serveCmdShortDescription = "Start the orchestrator and its HTTP control API."

const serveCmdLongDescription = `Starts every component of the orchestrator in one process: the provider
adapters named by CLOUDSPAN_PROVIDERS_*_ENABLED, the object catalog, the
placement classifier, the migration engine (resuming any jobs left unfinished
by a previous run), the event bus, and the control API on
CLOUDSPAN_LISTEN_ADDR. The process runs until SIGINT or SIGTERM; SIGHUP
reloads the access predictor model without a restart.`

// ===================================== ENV COMMAND ===================================== //
const envCmdShortDescription = "Shows the environment variables that configure CloudSpan."

const envCmdLongDescription = envCmdShortDescription + ` Values of variables holding
credentials are redacted unless --show-sensitive is passed.`
