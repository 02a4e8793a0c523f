// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/nqminds/EDGESec/internal/errors"
)

// Validate checks the structural invariants a loaded Config must satisfy
// before the supervisor wires its components against it: every interface
// parses as a real IPv4 subnet, VLAN IDs are unique, and the sockets/paths
// the daemon depends on are non-empty.
func Validate(c *Config) error {
	var problems []string

	if c.CommandSocket == "" {
		problems = append(problems, "command_socket must be set")
	}
	if c.APControlSocket == "" {
		problems = append(problems, "ap_control_socket must be set")
	}
	if c.StoreDB == "" {
		problems = append(problems, "store_db must be set")
	}
	if len(c.Interfaces) == 0 {
		problems = append(problems, "at least one interface block is required")
	}

	seen := make(map[uint16]bool, len(c.Interfaces))
	for _, iface := range c.Interfaces {
		if seen[iface.VlanID] {
			problems = append(problems, fmt.Sprintf("duplicate vlan_id %d", iface.VlanID))
		}
		seen[iface.VlanID] = true

		if iface.IfName == "" {
			problems = append(problems, fmt.Sprintf("interface %d: ifname must be set", iface.VlanID))
		}
		if ip := net.ParseIP(iface.IP); ip == nil || ip.To4() == nil {
			problems = append(problems, fmt.Sprintf("interface %d: invalid ip %q", iface.VlanID, iface.IP))
		}
		if mask := net.ParseIP(iface.Netmask); mask == nil || mask.To4() == nil {
			problems = append(problems, fmt.Sprintf("interface %d: invalid netmask %q", iface.VlanID, iface.Netmask))
		}
	}

	if c.AllowAllConnections {
		if !seen[c.DefaultOpenVlan] {
			problems = append(problems, fmt.Sprintf("default_open_vlan %d has no matching interface block", c.DefaultOpenVlan))
		}
		if c.WPAPassphrase == "" {
			problems = append(problems, "wpa_passphrase must be set when allow_all_connections is true")
		}
	}

	if c.Capture.ExecCapture && c.Capture.Snaplen <= 0 {
		problems = append(problems, "capture.snaplen must be positive when exec_capture is true")
	}

	if len(problems) > 0 {
		return errors.New(errors.KindValidation, "config: "+strings.Join(problems, "; "))
	}
	return nil
}
