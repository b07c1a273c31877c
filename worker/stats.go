package worker

import (
	"github.com/c9s/goprocinfo/linux"
	log "github.com/sirupsen/logrus"
)

const kbPerGB = 1024 * 1024

func GetStats() *Stats {
	return &Stats{
		MemStats:  getMemoryInfo(),
		CpuStats:  getCpuStats(),
		LoadStats: getLoadAverage(),
		Cores:     getCoreCount(),
	}
}

// Stats is what a worker reports to the manager. Capacity figures are in GB
// of memory, the unit footprints are expressed in.
type Stats struct {
	MemStats     *linux.MemInfo
	CpuStats     *linux.CPUStat
	LoadStats    *linux.LoadAvg
	Cores        int
	Capacity     float64
	CapacityUsed float64
	OrderCount   int
}

func (s *Stats) MemTotalKb() uint64 {
	if s.MemStats == nil {
		return 0
	}
	return s.MemStats.MemTotal
}

func (s *Stats) MemAvailableKb() uint64 {
	if s.MemStats == nil {
		return 0
	}
	return s.MemStats.MemAvailable
}

func (s *Stats) MemUsedKb() uint64 {
	return s.MemTotalKb() - s.MemAvailableKb()
}

func (s *Stats) MemTotalGB() float64 {
	return float64(s.MemTotalKb()) / kbPerGB
}

func (s *Stats) CpuUsage() float64 {
	if s.CpuStats == nil {
		return 0.00
	}
	idle := s.CpuStats.Idle + s.CpuStats.IOWait
	nonIdle := s.CpuStats.User + s.CpuStats.Nice + s.CpuStats.System + s.CpuStats.IRQ + s.CpuStats.SoftIRQ + s.CpuStats.Steal
	total := idle + nonIdle

	if total == 0 {
		return 0.00
	}

	return (float64(total) - float64(idle)) / float64(total)
}

func getMemoryInfo() *linux.MemInfo {

	if memstats, err := linux.ReadMemInfo("/proc/meminfo"); err != nil {
		log.Printf("Error reading from /proc/meminfo")
		return &linux.MemInfo{}
	} else {
		return memstats
	}
}

func getCpuStats() *linux.CPUStat {

	if cpustats, err := linux.ReadStat("/proc/stat"); err != nil {
		log.Printf("Error reading from /proc/stat")
		return &linux.CPUStat{}
	} else {
		return &cpustats.CPUStatAll
	}
}

func getCoreCount() int {

	if cpuinfo, err := linux.ReadCPUInfo("/proc/cpuinfo"); err != nil {
		log.Printf("Error reading from /proc/cpuinfo")
		return 1
	} else if n := cpuinfo.NumCPU(); n > 0 {
		return n
	}
	return 1
}

func getLoadAverage() *linux.LoadAvg {

	if loadstats, err := linux.ReadLoadAvg("/proc/loadavg"); err != nil {
		log.Printf("Error reading from /proc/loadavg")
		return &linux.LoadAvg{}
	} else {
		return loadstats
	}
}
