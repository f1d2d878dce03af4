//go:build !windows

// Package osutils holds platform helpers for privileges and firewall rules.
package osutils

import (
	"os"

	"go.uber.org/zap"
)

// IsAdmin reports whether the process runs as root.
func IsAdmin() bool {
	return os.Geteuid() == 0
}

// EnsureFirewallRule is a no-op off Windows.
func EnsureFirewallRule(name string, port int, log *zap.Logger) error {
	log.Debug("firewall rules are only managed on windows", zap.String("rule", name), zap.Int("port", port))
	return nil
}
