// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates the supervisor's HCL configuration
// file: interfaces/VLANs, the AP and DHCP control-socket paths, the RADIUS
// listener, credential-store location, netfilter NAT interface, and the
// capture scheduler's policy knobs (spec.md §4, §6). It keeps the teacher's
// HCL-plus-SecureString idiom (`internal/config` in the teacher tree) but
// drops everything the teacher's own config carries for concerns this
// system doesn't have (zones, policies, VPN, web UI, eBPF, cloud
// management, scheduling, QoS) — none of that is reachable from any
// SPEC_FULL.md component.
package config

// CurrentSchemaVersion is bumped whenever a field is added or renamed in a
// way that breaks an existing on-disk config.
const CurrentSchemaVersion = "1.0"

// SecureString hides its value from JSON/GoString output so the WPA
// passphrase and RADIUS shared secret never land in a log line or an
// accidental config dump (teacher's own masking idiom, reused verbatim).
type SecureString string

func (s SecureString) String() string {
	if s == "" {
		return ""
	}
	return "(hidden)"
}

func (s SecureString) GoString() string { return "(hidden)" }

// MarshalJSON masks the value wherever Config is serialized.
func (s SecureString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"(hidden)"`), nil
}

// UnmarshalText lets SecureString decode directly from an HCL string value.
func (s *SecureString) UnmarshalText(text []byte) error {
	*s = SecureString(string(text))
	return nil
}

// Config is the top-level on-disk configuration (spec.md §4, §6).
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional"`

	// PIDFile and LogFile are the process's own housekeeping paths
	// (spec.md §4.1): the PID file carries the advisory lock guaranteeing
	// a single running supervisor, the log file is reopened on SIGHUP.
	PIDFile string `hcl:"pid_file,optional"`
	LogFile string `hcl:"log_file,optional"`

	// CommandSocket is the C2 operator command socket path.
	CommandSocket string `hcl:"command_socket"`

	// APControlSocket / APEventSocket are hostapd's control and event
	// sockets, consumed by C5 (internal/apctl).
	APControlSocket string `hcl:"ap_control_socket"`
	APEventSocket   string `hcl:"ap_event_socket"`

	// StoreDB is the SQLite file backing C3/C4/C9 (internal/store,
	// internal/credstore).
	StoreDB string `hcl:"store_db"`

	// MasterSecretFile holds the credential-store master key material
	// (spec.md §4.4); never the key itself inline in the config.
	MasterSecretFile string `hcl:"master_secret_file"`

	// NATInterface is the egress interface ADD_NAT/SET_IP masquerade
	// through (spec.md §4.8).
	NATInterface string `hcl:"nat_interface"`

	Interfaces []InterfaceConfig `hcl:"interface,block"`

	RADIUS RADIUSConfig `hcl:"radius,block"`

	// AllowAllConnections, DefaultOpenVlan and WPAPassphrase are the
	// get_mac_conn open-network policy knobs (spec.md §4.7).
	AllowAllConnections bool         `hcl:"allow_all_connections,optional"`
	DefaultOpenVlan     uint16       `hcl:"default_open_vlan,optional"`
	WPAPassphrase       SecureString `hcl:"wpa_passphrase,optional"`

	Capture CaptureConfig `hcl:"capture,block"`

	DHCP DHCPObserveConfig `hcl:"dhcp,block"`

	// DNSForwarderAddr, if set, is periodically probed by internal/dnsfwd
	// as a liveness check on the co-located mDNS/DNS forwarder (e.g.
	// dnsmasq) — the supervisor doesn't run or configure this forwarder,
	// it only wants a log line when it stops answering.
	DNSForwarderAddr string `hcl:"dns_forwarder_addr,optional"`
}

// InterfaceConfig is one managed VLAN interface (spec.md §3's IfaceConfig,
// as configured rather than as loaded from the kernel at runtime).
type InterfaceConfig struct {
	VlanID    uint16 `hcl:"vlan_id,label"`
	IfName    string `hcl:"ifname"`
	IP        string `hcl:"ip"`
	Netmask   string `hcl:"netmask"`
	Broadcast string `hcl:"broadcast,optional"`
}

// RADIUSConfig parameterizes C6 (internal/radius).
type RADIUSConfig struct {
	ListenAddr   string       `hcl:"listen_addr,optional"`
	SharedSecret SecureString `hcl:"shared_secret"`
}

// CaptureConfig parameterizes C9 (internal/capture): whether per-VLAN
// packet capture is spawned at all, and the libpcap knobs the spawned
// worker is given (spec.md §4.9).
type CaptureConfig struct {
	ExecCapture bool   `hcl:"exec_capture,optional"`
	Snaplen     int    `hcl:"snaplen,optional"`
	Promiscuous bool   `hcl:"promiscuous,optional"`
	Immediate   bool   `hcl:"immediate_mode,optional"`
	Filter      string `hcl:"filter,optional"`
	GRPCSink    string `hcl:"grpc_sink,optional"`
}

// DHCPObserveConfig parameterizes C10 (internal/dhcpobserve): either a
// dnsmasq/ISC-DHCP lease hook-script path the supervisor expects to be
// invoked on, or a lease file to tail as a fallback when no hook is wired
// up (spec.md original_source supplement, see SPEC_FULL.md §6.10).
type DHCPObserveConfig struct {
	HookSocket string `hcl:"hook_socket,optional"`
	LeaseFile  string `hcl:"lease_file,optional"`
}
