package device

import (
	"sync/atomic"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

type countingReopener struct{ n atomic.Int32 }

func (c *countingReopener) Reopen() { c.n.Add(1) }

func TestNewHotplugMonitor_RequiresDevNode(t *testing.T) {
	if m := NewHotplugMonitor("-", &countingReopener{}, nil); m != nil {
		t.Error("stdin reader should not get a monitor")
	}
	var m *HotplugMonitor
	m.Stop()
	if m.Running() {
		t.Error("nil monitor reports running")
	}
}

func TestHotplugMonitor_HandleEvent(t *testing.T) {
	target := &countingReopener{}
	m := NewHotplugMonitor("/dev/ttyACM0", target, nil)

	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "ttyACM1"}})
	m.handleEvent(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVNAME": "/dev/ttyACM0"}})
	if target.n.Load() != 0 {
		t.Fatalf("unexpected reopen for foreign or remove events")
	}

	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "ttyACM0"}})
	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/tty/ttyACM0"}})
	if target.n.Load() != 2 {
		t.Errorf("expected 2 reopens, got %d", target.n.Load())
	}
}
