//go:build windows

package osutils

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token)
	if err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err = windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return member
}

// EnsureFirewallRule makes sure an inbound TCP rule named name allows port,
// creating or replacing it through PowerShell. Without admin rights the
// command is launched elevated and the user sees a UAC prompt.
func EnsureFirewallRule(name string, port int, log *zap.Logger) error {
	log = log.With(zap.String("rule", name), zap.Int("port", port))

	out, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+name).CombinedOutput()
	if err == nil && ruleAllows(string(out), name, port) {
		log.Debug("firewall rule present")
		return nil
	}

	ps := fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol TCP -Action Allow -Profile Any",
		name, name, port,
	)

	if !IsAdmin() {
		log.Info("requesting elevation to add firewall rule")
		verb, _ := syscall.UTF16PtrFromString("runas")
		exe, _ := syscall.UTF16PtrFromString("powershell.exe")
		args, _ := syscall.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", ps))
		if err := windows.ShellExecute(0, verb, exe, args, nil, windows.SW_HIDE); err != nil {
			return fmt.Errorf("elevated powershell: %w", err)
		}
		return nil
	}

	if out, err := exec.Command("powershell", "-NoProfile", "-Command", ps).CombinedOutput(); err != nil {
		return fmt.Errorf("create firewall rule: %w (output: %s)", err, out)
	}
	log.Info("firewall rule added")
	return nil
}

func ruleAllows(netshOutput, name string, port int) bool {
	return strings.Contains(netshOutput, name) &&
		strings.Contains(netshOutput, fmt.Sprintf("%d", port)) &&
		strings.Contains(netshOutput, "Allow")
}
