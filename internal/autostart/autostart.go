// Package autostart registers ZedLink to start on login.
package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const label = "io.zedlink.agent"

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>{{range .Args}}
        <string>{{.}}</string>{{end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=ZedLink
Comment=Share one mouse between two computers
Exec={{.ExecutablePath}}{{range .Args}} {{.}}{{end}}
X-GNOME-Autostart-enabled=true
NoDisplay=true
`

type entry struct {
	Label          string
	ExecutablePath string
	Args           []string
}

// Enable registers the running executable, with args, to start on login.
func Enable(args ...string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	e := entry{Label: label, ExecutablePath: execPath, Args: args}

	switch runtime.GOOS {
	case "darwin":
		return writeTemplate(macPlistPath(), macLaunchAgentPlist, e)
	case "windows":
		return enableWindows(e)
	default:
		return writeTemplate(xdgEntryPath(), xdgDesktopEntry, e)
	}
}

// Disable removes the login entry.
func Disable() error {
	switch runtime.GOOS {
	case "darwin":
		return removeFile(macPlistPath())
	case "windows":
		return disableWindows()
	default:
		return removeFile(xdgEntryPath())
	}
}

// IsEnabled reports whether a login entry exists.
func IsEnabled() bool {
	switch runtime.GOOS {
	case "darwin":
		return exists(macPlistPath())
	case "windows":
		return isEnabledWindows()
	default:
		return exists(xdgEntryPath())
	}
}

func macPlistPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist")
}

func xdgEntryPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "autostart", "zedlink.desktop")
}

func writeTemplate(path, text string, e entry) error {
	tmpl, err := template.New(filepath.Base(path)).Parse(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, e)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// commandLine quotes the executable for the Windows Run key.
func commandLine(e entry) string {
	parts := append([]string{`"` + e.ExecutablePath + `"`}, e.Args...)
	return strings.Join(parts, " ")
}
