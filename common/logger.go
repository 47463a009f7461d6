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
	"log"
	"path"
	"runtime"
	"time"
)

type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
	Panic(err error)
}

type ILoggerCloser interface {
	ILogger
	CloseLog()
}

type ILoggerResetable interface {
	OpenLog()
	MinimumLogLevel() LogLevel
	ILoggerCloser
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

const maxLogSize = 500 * 1024 * 1024

// fileLogger writes one log file per scope: the process gets one, and every
// migration job gets its own, named by job id.
type fileLogger struct {
	fileName          string
	minimumLevelToLog LogLevel       // messages with lower severity than this are dropped
	file              io.WriteCloser // the scope's log file
	logFileFolder     string         // the log file's parent folder
	logger            *log.Logger
	sanitizer         LogSanitizer
}

// NewJobLogger opens a per-job log in logFileFolder, named by the job id.
func NewJobLogger(jobID JobID, minimumLevelToLog LogLevel, logFileFolder string) ILoggerResetable {
	return &fileLogger{
		fileName:          jobID.String(),
		minimumLevelToLog: minimumLevelToLog,
		logFileFolder:     logFileFolder,
		sanitizer:         NewLogSanitizer(),
	}
}

// NewProcessLogger opens the process-wide log used outside any job scope.
func NewProcessLogger(minimumLevelToLog LogLevel, logFileFolder string) ILoggerResetable {
	return &fileLogger{
		fileName:          "cloudspan",
		minimumLevelToLog: minimumLevelToLog,
		logFileFolder:     logFileFolder,
		sanitizer:         NewLogSanitizer(),
	}
}

func (fl *fileLogger) OpenLog() {
	if fl.minimumLevelToLog == LogNone {
		return
	}

	file, err := NewRotatingWriter(path.Join(fl.logFileFolder, fl.fileName+".log"), maxLogSize)
	PanicIfErr(err)

	fl.file = file

	flags := log.LstdFlags | log.LUTC
	utcMessage := fmt.Sprintf("Log times are in UTC. Local time is %s", time.Now().Format("2 Jan 2006 15:04:05"))

	fl.logger = log.New(fl.file, "", flags)
	fl.logger.Println("CloudspanVersion ", CloudspanVersion)
	fl.logger.Println("OS-Environment ", runtime.GOOS)
	fl.logger.Println("OS-Architecture ", runtime.GOARCH)
	fl.logger.Println(utcMessage)
}

func (fl *fileLogger) MinimumLogLevel() LogLevel {
	return fl.minimumLevelToLog
}

func (fl *fileLogger) ShouldLog(level LogLevel) bool {
	if level == LogNone {
		return false
	}
	return level <= fl.minimumLevelToLog
}

func (fl *fileLogger) CloseLog() {
	if fl.minimumLevelToLog == LogNone || fl.file == nil {
		return
	}

	fl.logger.Println("Closing Log")
	_ = fl.file.Close() // If it was already closed, that's alright. We wanted to close it, anyway.
}

func (fl *fileLogger) Log(loglevel LogLevel, msg string) {
	// ensure all secrets are redacted
	msg = fl.sanitizer.SanitizeLogMessage(msg)

	if fl.ShouldLog(loglevel) && fl.logger != nil {
		prefix := ""
		if loglevel <= LogWarning {
			prefix = fmt.Sprintf("%s: ", loglevel) // so readers can find serious ones, but information ones still look uncluttered without INFO:
		}
		fl.logger.Println(prefix + msg)
	}
}

func (fl *fileLogger) Panic(err error) {
	if fl.logger != nil {
		fl.logger.Println(err) // We do NOT panic here as the app would terminate; we just log it
	}
	panic(err)
	// We should never reach this line of code!
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// NoneLogger drops everything. Useful as the default in tests and before
// configuration has been read.
type NoneLogger struct{}

func (NoneLogger) ShouldLog(LogLevel) bool   { return false }
func (NoneLogger) Log(LogLevel, string)      {}
func (NoneLogger) Panic(err error)           { panic(err) }
func (NoneLogger) CloseLog()                 {}
func (NoneLogger) OpenLog()                  {}
func (NoneLogger) MinimumLogLevel() LogLevel { return LogNone }

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// HTTPTraceLogger adapts an ILogger to the io.Writer the S3 SDK's TraceOn
// wants, so wire traces land in the same log file as everything else.
type HTTPTraceLogger struct {
	logger   ILogger
	logLevel LogLevel
}

func NewHTTPTraceLogger(logger ILogger, level LogLevel) HTTPTraceLogger {
	return HTTPTraceLogger{
		logger:   logger,
		logLevel: level,
	}
}

func (e HTTPTraceLogger) Write(msg []byte) (n int, err error) {
	toPrint := string(msg)
	e.logger.Log(e.logLevel, toPrint)
	return len(toPrint), nil
}
