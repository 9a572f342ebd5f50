package env

import (
	"runtime"
	"strings"
	"sync"
)

type OS string

const (
	OSLinux   OS = "linux"
	OSDarwin  OS = "darwin"
	OSWindows OS = "windows"
	OSBSD     OS = "bsd"
	OSOther   OS = "other"
)

// Platform describes the host family. It only affects path conventions.
type Platform struct {
	OS        OS
	Unix      bool
	PathSep   string
	LineBreak string
}

// DetectPlatform classifies a GOOS-style name.
func DetectPlatform(osName string) Platform {
	name := strings.ToLower(osName)
	switch {
	case name == "linux" || name == "android":
		return unix(OSLinux)
	case name == "darwin" || name == "ios":
		return unix(OSDarwin)
	case strings.HasSuffix(name, "bsd") || name == "dragonfly":
		return unix(OSBSD)
	case name == "windows":
		return Platform{OS: OSWindows, PathSep: `\`, LineBreak: "\r\n"}
	case name == "solaris" || name == "illumos" || name == "aix":
		return unix(OSOther)
	}
	return Platform{OS: OSOther, PathSep: "/", LineBreak: "\n"}
}

func unix(os OS) Platform {
	return Platform{OS: os, Unix: true, PathSep: "/", LineBreak: "\n"}
}

// Current is computed once for the running process.
var Current = sync.OnceValue(func() Platform {
	return DetectPlatform(runtime.GOOS)
})
