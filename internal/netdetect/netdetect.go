// Package netdetect finds the local interfaces device traffic flows over.
package netdetect

import (
	"fmt"
	"net"
	"strings"

	"github.com/genba/labjackgo/internal/transport"
)

// InterfaceInfo represents a network interface with its properties.
type InterfaceInfo struct {
	Name       string   // System interface name (e.g., "en0", "eth0")
	Addresses  []string // IPv4 addresses assigned to this interface
	Broadcast  string   // Directed broadcast of the first IPv4 network, if any
	IsUp       bool
	IsLoopback bool
}

// ListInterfaces returns every interface with at least one IPv4 address.
func ListInterfaces() ([]InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var out []InterfaceInfo
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		info := InterfaceInfo{
			Name:       iface.Name,
			IsUp:       iface.Flags&net.FlagUp != 0,
			IsLoopback: iface.Flags&net.FlagLoopback != 0,
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			info.Addresses = append(info.Addresses, ipnet.IP.String())
		}
		if len(info.Addresses) == 0 {
			continue
		}
		if !info.IsLoopback {
			if b, err := transport.BroadcastAddr(iface.Name, "", 0); err == nil {
				info.Broadcast = b.IP.String()
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// DetectInterfaceForTarget returns the interface the host would use to reach
// targetIP. No packet is sent: a UDP socket is connected only to learn the
// source address the routing table picks.
func DetectInterfaceForTarget(targetIP string) (string, error) {
	ip := net.ParseIP(targetIP)
	if ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("invalid IP address: %s", targetIP)
	}
	if ip.IsLoopback() {
		return findLoopbackInterface()
	}

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: ip, Port: transport.DefaultPorts().Discovery})
	if err != nil {
		return "", fmt.Errorf("no route to %s: %w", targetIP, err)
	}
	local := conn.LocalAddr().(*net.UDPAddr).IP.String()
	conn.Close()

	return interfaceWithAddress(local)
}

// DetectInterfaceForListen returns the interface bound to listenIP. For
// 0.0.0.0 it returns the first non-loopback interface.
func DetectInterfaceForListen(listenIP string) (string, error) {
	ip := net.ParseIP(listenIP)
	if ip == nil {
		return "", fmt.Errorf("invalid IP address: %s", listenIP)
	}
	if ip.IsLoopback() {
		return findLoopbackInterface()
	}
	if ip.IsUnspecified() {
		interfaces, err := ListInterfaces()
		if err != nil {
			return "", err
		}
		for _, iface := range interfaces {
			if !iface.IsLoopback && iface.IsUp {
				return iface.Name, nil
			}
		}
		return "", fmt.Errorf("no non-loopback interfaces found")
	}
	return interfaceWithAddress(listenIP)
}

func interfaceWithAddress(addr string) (string, error) {
	interfaces, err := ListInterfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range interfaces {
		for _, a := range iface.Addresses {
			if a == addr {
				return iface.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no interface found with IP %s", addr)
}

func findLoopbackInterface() (string, error) {
	interfaces, err := ListInterfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range interfaces {
		if iface.IsLoopback {
			return iface.Name, nil
		}
	}
	return "", fmt.Errorf("no loopback interface found")
}

// AddressString returns up to three addresses, comma separated.
func AddressString(info InterfaceInfo) string {
	if len(info.Addresses) == 0 {
		return "no addresses"
	}
	n := len(info.Addresses)
	if n > 3 {
		n = 3
	}
	result := strings.Join(info.Addresses[:n], ", ")
	if len(info.Addresses) > 3 {
		result += fmt.Sprintf(" (+%d more)", len(info.Addresses)-3)
	}
	return result
}
