package appinfo

import "os"

// DebugEnabled controls whether or not verbose debug logging is enabled. It
// is set automatically based on the MONITOR_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("MONITOR_DEBUG") == "1"
}
