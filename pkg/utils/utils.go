package utils

import (
	"errors"
	"net"
	"strings"

	"github.com/google/uuid"
)

// 虚拟网卡前缀，选本机 IP 时跳过
var virtualPrefixes = []string{
	"docker", "vmnet", "vboxnet", "br-", "veth", "lo", "tun", "tap",
	"zt", "ham", "npf", "wg", "tailscale", // VPN/Tunnel
	"utun", "macsec", "gpd", // macOS 特有
	"virbr", // Linux 虚拟桥接
}

func isVirtual(name string) bool {
	name = strings.ToLower(name)
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// GetLocalIP 返回首个可用的非回环 IPv4 地址，排除虚拟接口，preferPrefixes 命中的网段优先
func GetLocalIP(preferPrefixes ...string) (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var fallbackIP string
	for _, iface := range interfaces {
		// 跳过未启用、回环或虚拟的接口
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || isVirtual(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP == nil || ipNet.IP.IsLoopback() {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil {
				continue // 只取 IPv4
			}
			ipStr := ip.String()
			for _, pfx := range preferPrefixes {
				if strings.HasPrefix(ipStr, pfx) {
					return ipStr, nil
				}
			}
			if fallbackIP == "" {
				fallbackIP = ipStr
			}
		}
	}
	if fallbackIP != "" {
		return fallbackIP, nil
	}
	return "", errors.New("no valid local IP found")
}

// ResolveHost host 为空或通配地址时换成本机 IP
func ResolveHost(host string) (string, error) {
	switch host {
	case "", "0.0.0.0", "::":
		return GetLocalIP()
	default:
		return host, nil
	}
}

// 生成 UUID v4
func GenerateUUID() string {
	return uuid.New().String()
}
