// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/sun-lab-nbb/axtl/internal/config"
	"github.com/sun-lab-nbb/axtl/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts
// serving. It catches operator mistakes early instead of failing mid-run.
func PerformStartupChecks(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str("event", "startup.checks").Msg("running pre-flight startup checks")

	if err := checkListenAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}

	if cfg.Device == "" {
		logger.Warn().
			Str("event", "startup.loopback").
			Msg("no serial device configured; running against in-memory loopback")
	} else if err := checkDevice(cfg.Device); err != nil {
		return fmt.Errorf("serial device check failed: %w", err)
	}

	logger.Info().Str("event", "startup.checks.passed").Msg("all startup checks passed")
	return nil
}

func checkListenAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("listen address is empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	return nil
}

func checkDevice(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("device does not exist: %s", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("device path is a directory: %s", path)
	}
	return nil
}
