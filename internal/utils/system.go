package utils

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// SystemInfo holds information about the current system
type SystemInfo struct {
	OS            string
	Architecture  string
	ChromePresent bool
	ChromePath    string
}

// DetectSystem returns information about the current operating system,
// architecture and the Chrome binary used to render HTML receipts.
// A configured path wins over autodetection when it exists.
func DetectSystem(chromePath string) SystemInfo {
	info := SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
	if chromePath != "" {
		if _, err := os.Stat(chromePath); err == nil {
			info.ChromePresent, info.ChromePath = true, chromePath
			return info
		}
	}
	info.ChromePresent, info.ChromePath = CheckChrome()
	return info
}

// --------------------------------------
// CHROME CHECK
// --------------------------------------

// CheckChrome checks if google-chrome or chromium is installed
func CheckChrome() (bool, string) {
	// Try common binary names
	binaries := []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
	}

	for _, bin := range binaries {
		path, err := exec.LookPath(bin)
		if err == nil {
			return true, path
		}
	}

	// Check common installation paths
	for _, path := range getCommonChromePaths() {
		if _, err := os.Stat(path); err == nil {
			return true, path
		}
	}

	return false, ""
}

// getCommonChromePaths returns common Chrome/Chromium installation paths
func getCommonChromePaths() []string {
	switch runtime.GOOS {
	case "darwin": // macOS
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}

	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}

	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files\Chromium\Application\chromium.exe`,
			`C:\Program Files (x86)\Chromium\Application\chromium.exe`,
		}

	default:
		return []string{}
	}
}

// ChromeVersion attempts to get the version of Chrome/Chromium
func ChromeVersion(path string) string {
	cmd := exec.Command(path, "--version")
	output, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}
