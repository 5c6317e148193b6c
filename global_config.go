package daqcore

import (
	"log"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Portnumbers holds the TCP port numbers used by the core's status link.
type Portnumbers struct {
	RPC    int
	Status int
}

// Ports globally holds all TCP port numbers used by the core.
var Ports = Portnumbers{RPC: 5550, Status: 5551}

func setPortnumbers(base int) {
	Ports.RPC = base
	Ports.Status = base + 1
}

// BuildInfo carries compile-time information about the build.
type BuildInfo struct {
	Version string
	Githash string
	Date    string
}

// Build is a global holding compile-time build information.
var Build = BuildInfo{
	Version: "0.1.0",
	Githash: "no git hash computed",
	Date:    "no build date computed",
}

// CoreStartTime is a global holding the time init() was run.
var CoreStartTime time.Time

// ProblemLogger logs warning and error messages. The real daqreader CLI
// redirects it to a lumberjack-rotated file under --logdir; by default it
// writes to stderr so tests and library callers aren't surprised by files
// appearing on disk.
var ProblemLogger *log.Logger

func init() {
	CoreStartTime = time.Now()
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
}

// SetLogFile redirects ProblemLogger to a rotating file at path, keeping
// retentionDays days of backups. Matches the --logdir/--log-retention
// CLI flags.
func SetLogFile(path string, retentionDays int) {
	ProblemLogger = log.New(&lumberjack.Logger{
		Filename: path,
		MaxAge:   retentionDays,
		Compress: true,
	}, "", log.LstdFlags)
}
