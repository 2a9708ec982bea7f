package log

import (
	"os"
	"path/filepath"
	"runtime"
)

// defaultDir is the per-user log location:
//
//	darwin   ~/Library/Logs/voxchat
//	windows  %LOCALAPPDATA%\voxchat\logs
//	others   $XDG_STATE_HOME/voxchat (~/.local/state/voxchat)
func defaultDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName, "logs"), nil
		}
	case "darwin":
	default:
		if state := os.Getenv("XDG_STATE_HOME"); filepath.IsAbs(state) {
			return filepath.Join(state, appName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", appName, "logs"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Logs", appName), nil
	}
	return filepath.Join(home, ".local", "state", appName), nil
}
