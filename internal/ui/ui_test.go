package ui

import (
	"strings"
	"testing"

	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/transport"
)

func TestRenderDevices(t *testing.T) {
	Plain()
	ids := []device.Identity{
		{Family: device.UE9, Transport: transport.KindTCP, Serial: 268775481, LocalID: 1, Address: "192.168.1.209"},
		{Family: device.U3, Transport: transport.KindUSB, Serial: 320012345, LocalID: 2},
	}
	out := RenderDevices(ids)
	for _, want := range []string{"2 device(s)", "SERIAL", "UE9", "192.168.1.209", "320012345", "usb"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if got := RenderDevices(nil); !strings.Contains(got, "No devices found") {
		t.Fatalf("empty render: %q", got)
	}
}

func TestDeviceLabel(t *testing.T) {
	id := device.Identity{Family: device.UE9, Serial: 7, LocalID: 3, Address: "10.0.0.2"}
	if got, want := DeviceLabel(id), "UE9 serial 7 local 3 @ 10.0.0.2"; got != want {
		t.Fatalf("label: got %q want %q", got, want)
	}
	id.Address = ""
	if got, want := DeviceLabel(id), "UE9 serial 7 local 3"; got != want {
		t.Fatalf("label: got %q want %q", got, want)
	}
}

func TestPickDeviceWithoutPrompt(t *testing.T) {
	if _, err := PickDevice(nil); err != ErrNoDevices {
		t.Fatalf("empty: got %v", err)
	}
	i, err := PickDevice([]device.Identity{{Serial: 1}})
	if err != nil || i != 0 {
		t.Fatalf("single: got %d, %v", i, err)
	}
}

func TestBuildPickForm(t *testing.T) {
	choice := 0
	form := buildPickForm([]device.Identity{{Serial: 1}, {Serial: 2}}, &choice)
	if form == nil {
		t.Fatal("nil form")
	}
}
