package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/jangxx/UniversalTrackerMarkers/internal/config"
	"github.com/jangxx/UniversalTrackerMarkers/internal/remote"
)

// sendToggle implements `toggle <address> <true|false> [configDir]`: it
// sends one boolean OSC message to the configured listener.
func sendToggle(args []string) error {
	address, value, err := parseToggleArgs(args)
	if err != nil {
		return err
	}

	var rest []string
	if len(args) > 2 {
		rest = args[2:]
	}
	dir, err := resolveConfigDir(rest)
	if err != nil {
		return err
	}
	if _, err := loadConfig(dir); err != nil {
		return err
	}

	conn, err := net.Dial("udp", config.GetOSCConfig().Addr())
	if err != nil {
		return fmt.Errorf("connecting to osc listener: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(remote.EncodeBool(address, value)); err != nil {
		return fmt.Errorf("sending toggle: %w", err)
	}
	return nil
}

func parseToggleArgs(args []string) (string, bool, error) {
	if len(args) < 2 {
		return "", false, errors.New("usage: toggle <address> <true|false> [configDir]")
	}
	value, err := strconv.ParseBool(args[1])
	if err != nil {
		return "", false, fmt.Errorf("invalid toggle value %q: %w", args[1], err)
	}
	return args[0], value, nil
}
