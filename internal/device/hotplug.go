package device

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"github.com/enxitry/enxitry/internal/logging"
)

// Reopener is implemented by readers that can re-attach after a replug.
type Reopener interface {
	Reopen()
}

// HotplugMonitor listens for udev add events of the configured reader node
// and reopens the reader when it comes back.
type HotplugMonitor struct {
	device string
	target Reopener
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewHotplugMonitor returns nil when device is not a /dev node.
func NewHotplugMonitor(device string, target Reopener, logger *slog.Logger) *HotplugMonitor {
	device = strings.TrimSpace(device)
	if !strings.HasPrefix(device, "/dev/") || target == nil {
		return nil
	}
	return &HotplugMonitor{
		device: device,
		target: target,
		logger: logging.NewComponentLogger(logger, "hotplug"),
	}
}

// Start connects to the udev netlink socket. Failing to connect is not
// fatal: the reader just will not be reopened automatically.
func (m *HotplugMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("netlink unavailable; reader replug needs a restart", logging.Error(err))
		return nil
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.loop(ctx, conn, quit)
	m.logger.Info("hotplug monitor started", slog.String("device", m.device))
	return nil
}

func (m *HotplugMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	_ = m.conn.Close()
	m.conn, m.quit, m.running = nil, nil, false
}

func (m *HotplugMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *HotplugMonitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			m.handleEvent(ev)
		case err := <-errs:
			m.logger.Warn("netlink monitor error", logging.Error(err))
		}
	}
}

func (m *HotplugMonitor) matcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{Action: &action})
	return rules
}

func (m *HotplugMonitor) handleEvent(ev netlink.UEvent) {
	if ev.Action != netlink.ADD {
		return
	}
	name := deviceName(ev)
	if name == "" || name != m.device {
		return
	}
	m.logger.Info("reader attached, reopening", slog.String("device", name))
	m.target.Reopen()
}

func deviceName(ev netlink.UEvent) string {
	if name := ev.Env["DEVNAME"]; name != "" {
		if !strings.HasPrefix(name, "/dev/") {
			name = "/dev/" + name
		}
		return name
	}
	if p := ev.Env["DEVPATH"]; p != "" {
		return "/dev/" + filepath.Base(p)
	}
	return ""
}
