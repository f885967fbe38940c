package toolchain

import (
	"runtime"

	"openblock/internal/index"
)

// Host detection seams; tests pin them to a known platform.
var (
	hostOS   = runtime.GOOS
	hostArch = runtime.GOARCH
)

// HostPlatform names the running OS the way registry metadata does
// (darwin, linux, win32).
func HostPlatform() string {
	switch hostOS {
	case "windows":
		return "win32"
	default:
		return hostOS
	}
}

// HostArch names the running CPU the way registry metadata does
// (x64, ia32, arm64, arm).
func HostArch() string {
	switch hostArch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	default:
		return hostArch
	}
}

// CurrentHost returns the {platform}-{architecture} host identifier.
func CurrentHost() string {
	return HostPlatform() + "-" + HostArch()
}

// MatchSystem returns the entry whose host equals host exactly. Hosts that
// differ in any way, including case or aliasing, are unsupported.
func MatchSystem(systems []index.System, host string) (index.System, bool) {
	for _, sys := range systems {
		if sys.Host == host {
			return sys, true
		}
	}
	return index.System{}, false
}
