package triage

import (
	"os/exec"
	"runtime"
)

// SystemOpener opens files with the desktop's default application
type SystemOpener struct{}

// Open starts the platform viewer for path and returns without waiting for it
func (SystemOpener) Open(path string) error {
	cmd := openCommand(runtime.GOOS, path)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func openCommand(goos, path string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", path)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		return exec.Command("xdg-open", path)
	}
}
