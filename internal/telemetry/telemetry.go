package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// Collector renders a plain-text snapshot of the host machine. Each
// section degrades independently: a probe failure becomes an error line
// instead of failing the whole snapshot.
type Collector struct{}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Snapshot() string {
	sections := []string{
		c.mounts(),
		c.blockDevices(),
		c.networks(),
		c.interfaceStats(),
		c.power(),
		c.memory(),
		c.loadAverage(),
		c.uptime(),
		c.bootTime(),
		c.cpuUsage(),
		c.cpuTemp(),
		c.connections(),
	}
	return strings.Join(sections, "\n")
}

func (c *Collector) mounts() string {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return fmt.Sprintf("Mounts: error: %v", err)
	}
	var b strings.Builder
	b.WriteString("Mounts:")
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			fmt.Fprintf(&b, "\n    %s --- %s ---> %s (usage unavailable: %v)", p.Device, p.Fstype, p.Mountpoint, err)
			continue
		}
		fmt.Fprintf(&b, "\n    %s --- %s ---> %s (available %s of %s)",
			p.Device, p.Fstype, p.Mountpoint, humanBytes(usage.Free), humanBytes(usage.Total))
	}
	return b.String()
}

func (c *Collector) blockDevices() string {
	counters, err := disk.IOCounters()
	if err != nil {
		return fmt.Sprintf("Block devices: error: %v", err)
	}
	var b strings.Builder
	b.WriteString("Block devices:")
	for name, stat := range counters {
		fmt.Fprintf(&b, "\n    %s: read %s, written %s", name, humanBytes(stat.ReadBytes), humanBytes(stat.WriteBytes))
	}
	return b.String()
}

func (c *Collector) networks() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Sprintf("Networks: error: %v", err)
	}
	var b strings.Builder
	b.WriteString("Networks:")
	for _, iface := range ifaces {
		addrs := make([]string, 0, len(iface.Addrs))
		for _, a := range iface.Addrs {
			addrs = append(addrs, a.Addr)
		}
		fmt.Fprintf(&b, "\n    %s (%s)", iface.Name, strings.Join(addrs, ", "))
	}
	return b.String()
}

func (c *Collector) interfaceStats() string {
	counters, err := net.IOCounters(true)
	if err != nil {
		return fmt.Sprintf("Interfaces: error: %v", err)
	}
	var b strings.Builder
	b.WriteString("Interfaces:")
	for _, stat := range counters {
		fmt.Fprintf(&b, "\n    %s statistics: (rx %s, tx %s, rx packets %d, tx packets %d)",
			stat.Name, humanBytes(stat.BytesRecv), humanBytes(stat.BytesSent), stat.PacketsRecv, stat.PacketsSent)
	}
	return b.String()
}

func (c *Collector) memory() string {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Sprintf("Memory: error: %v", err)
	}
	return fmt.Sprintf("Memory: %s used / %s (%d bytes) total",
		humanBytes(vmem.Used), humanBytes(vmem.Total), vmem.Total)
}

func (c *Collector) loadAverage() string {
	avg, err := load.Avg()
	if err != nil {
		return fmt.Sprintf("Load average: error: %v", err)
	}
	return fmt.Sprintf("Load average: %g %g %g", avg.Load1, avg.Load5, avg.Load15)
}

func (c *Collector) uptime() string {
	secs, err := host.Uptime()
	if err != nil {
		return fmt.Sprintf("Uptime: error: %v", err)
	}
	return fmt.Sprintf("Uptime: %s", (time.Duration(secs) * time.Second).String())
}

func (c *Collector) bootTime() string {
	epoch, err := host.BootTime()
	if err != nil {
		return fmt.Sprintf("Boot time: error: %v", err)
	}
	return fmt.Sprintf("Boot time: %s", time.Unix(int64(epoch), 0).Format(time.RFC3339))
}

func (c *Collector) cpuUsage() string {
	counts, err := cpu.Counts(true)
	if err != nil {
		return fmt.Sprintf("CPU: error: %v", err)
	}
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return fmt.Sprintf("CPU: %d logical cores, usage error: %v", counts, err)
	}
	var usage float64
	if len(percents) > 0 {
		usage = percents[0]
	}
	return fmt.Sprintf("CPU: %d logical cores, %.1f%% used", counts, usage)
}

func (c *Collector) cpuTemp() string {
	temps, err := host.SensorsTemperatures()
	if err != nil {
		return fmt.Sprintf("CPU temp: error: %v", err)
	}
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "coretemp") || strings.Contains(key, "cpu") {
			return fmt.Sprintf("CPU temp: %g", t.Temperature)
		}
	}
	return "CPU temp: error: no cpu sensor found"
}

// powerSupplyRoot is the sysfs tree holding battery and AC adapter
// state. gopsutil has no power probe, so this is read directly.
const powerSupplyRoot = "/sys/class/power_supply"

func (c *Collector) power() string {
	return powerFrom(powerSupplyRoot)
}

func powerFrom(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Sprintf("Battery: error: %v, AC power: error: %v", err, err)
	}
	battery := "Battery: error: no battery found"
	ac := "AC power: error: no AC adapter found"
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		kind, err := readSysValue(filepath.Join(dir, "type"))
		if err != nil {
			continue
		}
		switch kind {
		case "Battery":
			capacity, err := readSysValue(filepath.Join(dir, "capacity"))
			if err != nil {
				battery = fmt.Sprintf("Battery: error: %v", err)
				continue
			}
			battery = fmt.Sprintf("Battery: %s%%", capacity)
		case "Mains":
			online, err := readSysValue(filepath.Join(dir, "online"))
			if err != nil {
				ac = fmt.Sprintf("AC power: error: %v", err)
				continue
			}
			ac = fmt.Sprintf("AC power: %v", online == "1")
		}
	}
	return battery + ", " + ac
}

func readSysValue(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (c *Collector) connections() string {
	conns, err := net.Connections("all")
	if err != nil {
		return fmt.Sprintf("System socket statistics: error: %v", err)
	}
	return fmt.Sprintf("System socket statistics: %d connections", len(conns))
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
