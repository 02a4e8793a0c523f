// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dhcpobserve

import (
	"fmt"
	"os"

	"github.com/nqminds/EDGESec/internal/errors"
)

// hookScript is dnsmasq's --dhcp-script contract: dnsmasq invokes it as
// `script add|old|del <mac> <ip> [hostname]`, once per lease event. The
// body is a fixed shell one-liner that relays the first three arguments
// verbatim onto the command socket with socat — no interpolation of
// user-supplied config, just the reason/mac/ip dnsmasq already validated.
const hookScript = `#!/bin/sh
# Generated by edgesecd. Do not edit; re-run edgesecd to regenerate.
exec socat -u - UNIX-SENDTO:%s <<EOF
SET_IP $1 $2 $3
EOF
`

// InstallHook writes the dhcp-script hook to scriptPath, executable by
// dnsmasq, wired to send its SET_IP lines to cmdSocketPath.
func InstallHook(scriptPath, cmdSocketPath string) error {
	content := fmt.Sprintf(hookScript, cmdSocketPath)
	if err := os.WriteFile(scriptPath, []byte(content), 0o755); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "dhcpobserve: write hook script %s", scriptPath)
	}
	return nil
}
