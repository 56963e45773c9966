package visualization

import (
	"runtime"
	"testing"
)

func TestOpenBrowser_UnsupportedPlatform(t *testing.T) {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		t.Skipf("platform %s is supported, nothing to assert", runtime.GOOS)
	default:
		if err := OpenBrowser("http://localhost:0"); err == nil {
			t.Errorf("expected error on unsupported platform %s", runtime.GOOS)
		}
	}
}
