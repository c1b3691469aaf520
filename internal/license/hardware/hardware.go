// Package hardware derives the installation fingerprint a license is bound to.
package hardware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/smallbiznis/fintrack/internal/config"
)

// Attributes are the host properties folded into the fingerprint.
type Attributes struct {
	ServerSoftware string
	DocumentRoot   string
	Hostname       string
	OSName         string
}

// Source reads host properties. HostSource is the real implementation.
type Source interface {
	Attributes(ctx context.Context) Attributes
	PrimaryIPv4(ctx context.Context) string
}

// HostSource reads attributes of the running host.
type HostSource struct {
	ServerSoftware string
	DocumentRoot   string
}

func NewHostSource(cfg config.Config) HostSource {
	return HostSource{
		ServerSoftware: strings.TrimSpace(cfg.AppName),
		DocumentRoot:   documentRoot(cfg.License.DocumentRoot),
	}
}

// documentRoot prefers the configured install path and otherwise uses the
// directory of the running binary, so the working directory never matters.
func documentRoot(configured string) string {
	if root := strings.TrimSpace(configured); root != "" {
		return filepath.Clean(root)
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func (s HostSource) Attributes(ctx context.Context) Attributes {
	attrs := Attributes{
		ServerSoftware: s.ServerSoftware,
		DocumentRoot:   s.DocumentRoot,
		OSName:         runtime.GOOS,
	}
	if info, err := host.InfoWithContext(ctx); err == nil && info != nil {
		attrs.Hostname = info.Hostname
		if info.OS != "" {
			attrs.OSName = info.OS
		}
	}
	if attrs.Hostname == "" {
		attrs.Hostname, _ = os.Hostname()
	}
	return attrs
}

func (s HostSource) PrimaryIPv4(ctx context.Context) string {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if hasFlag(iface.Flags, "loopback") || !hasFlag(iface.Flags, "up") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, _ := strings.Cut(addr.Addr, "/")
			if strings.Count(ip, ".") == 3 && !strings.HasPrefix(ip, "127.") {
				return ip
			}
		}
	}
	return ""
}

func hasFlag(flags []string, want string) bool {
	for _, flag := range flags {
		if strings.EqualFold(flag, want) {
			return true
		}
	}
	return false
}

// Resolve returns the fingerprint for method. The result depends only on the
// inputs, so repeated calls on the same host agree.
func Resolve(ctx context.Context, method, manualID string, src Source) string {
	switch method {
	case config.HardwareIDMethodManual:
		if id := strings.TrimSpace(manualID); id != "" {
			return Fingerprint("manual", id)
		}
	case config.HardwareIDMethodIPBased:
		attrs := src.Attributes(ctx)
		if ip := src.PrimaryIPv4(ctx); ip != "" {
			return Fingerprint(ip, attrs.Hostname)
		}
	}
	attrs := src.Attributes(ctx)
	return Fingerprint(attrs.ServerSoftware, attrs.DocumentRoot, attrs.Hostname, attrs.OSName)
}

// Fingerprint hashes parts into a 64 character hex token.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
