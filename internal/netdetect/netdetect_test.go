package netdetect

import "testing"

func TestAddressString(t *testing.T) {
	tests := []struct {
		name     string
		info     InterfaceInfo
		expected string
	}{
		{"none", InterfaceInfo{}, "no addresses"},
		{"one", InterfaceInfo{Addresses: []string{"10.0.0.1"}}, "10.0.0.1"},
		{"three", InterfaceInfo{Addresses: []string{"a", "b", "c"}}, "a, b, c"},
		{"five", InterfaceInfo{Addresses: []string{"a", "b", "c", "d", "e"}}, "a, b, c (+2 more)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddressString(tt.info); got != tt.expected {
				t.Errorf("AddressString() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestListInterfacesHasLoopback(t *testing.T) {
	interfaces, err := ListInterfaces()
	if err != nil {
		t.Fatalf("ListInterfaces() error: %v", err)
	}
	found := false
	for _, iface := range interfaces {
		if iface.Name == "" {
			t.Error("interface has empty Name")
		}
		if iface.IsLoopback {
			found = true
			if iface.Broadcast != "" {
				t.Errorf("loopback %s has broadcast %s", iface.Name, iface.Broadcast)
			}
		}
	}
	if !found {
		t.Skip("no IPv4 loopback interface in this environment")
	}
}

func TestDetectLoopback(t *testing.T) {
	lo, err := findLoopbackInterface()
	if err != nil {
		t.Skipf("no loopback: %v", err)
	}
	for _, ip := range []string{"127.0.0.1"} {
		got, err := DetectInterfaceForTarget(ip)
		if err != nil {
			t.Fatalf("DetectInterfaceForTarget(%s): %v", ip, err)
		}
		if got != lo {
			t.Errorf("target %s: got %q want %q", ip, got, lo)
		}
		got, err = DetectInterfaceForListen(ip)
		if err != nil || got != lo {
			t.Errorf("listen %s: got %q, %v want %q", ip, got, err, lo)
		}
	}
}

func TestDetectInvalid(t *testing.T) {
	if _, err := DetectInterfaceForTarget("not-an-ip"); err == nil {
		t.Error("expected error for invalid target")
	}
	if _, err := DetectInterfaceForListen("300.1.1.1"); err == nil {
		t.Error("expected error for invalid listen address")
	}
}
