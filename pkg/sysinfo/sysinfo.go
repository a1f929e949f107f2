// Package sysinfo reports host health: CPU temperature, CPU usage and RAM usage.
package sysinfo

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	defaultThermalPath = "/sys/class/thermal/thermal_zone0/temp"
	defaultStatPath    = "/proc/stat"
	defaultSample      = 100 * time.Millisecond
)

// Info is one host health sample.
type Info struct {
	CPUTemp    float64 `json:"cpu_temp"`    // degrees Celsius
	CPUPercent float64 `json:"cpu_percent"` // busy share over the sample window
	RAMPercent float64 `json:"ram_percent"` // used share of total memory
}

// Legacy returns the [temp, cpu, ram] string triple the browser client expects.
func (i Info) Legacy() [3]string {
	return [3]string{
		strconv.FormatFloat(i.CPUTemp, 'f', 1, 64),
		strconv.FormatFloat(i.CPUPercent, 'f', 1, 64),
		strconv.FormatFloat(i.RAMPercent, 'f', 1, 64),
	}
}

// Reader collects Info. The zero value is not usable; call New.
type Reader struct {
	thermalPath string
	statPath    string
	sample      time.Duration
	sysinfo     func(*unix.Sysinfo_t) error
}

// New returns a Reader using the standard Linux paths.
func New() *Reader {
	return &Reader{
		thermalPath: defaultThermalPath,
		statPath:    defaultStatPath,
		sample:      defaultSample,
		sysinfo:     unix.Sysinfo,
	}
}

// Read takes one sample. CPU usage blocks for the sample window.
// Parts that cannot be read are left at zero and reported in the error.
func (r *Reader) Read(ctx context.Context) (Info, error) {
	var info Info
	var errs []string

	if t, err := r.CPUTemp(); err == nil {
		info.CPUTemp = t
	} else {
		errs = append(errs, err.Error())
	}
	if c, err := r.CPUPercent(ctx); err == nil {
		info.CPUPercent = c
	} else {
		errs = append(errs, err.Error())
	}
	if m, err := r.RAMPercent(); err == nil {
		info.RAMPercent = m
	} else {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return info, fmt.Errorf("sysinfo: %s", strings.Join(errs, "; "))
	}
	return info, nil
}

// CPUTemp reads the first thermal zone in degrees Celsius.
func (r *Reader) CPUTemp() (float64, error) {
	data, err := os.ReadFile(r.thermalPath)
	if err != nil {
		return 0, fmt.Errorf("read thermal zone: %w", err)
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse thermal zone: %w", err)
	}
	return milli / 1000, nil
}

// CPUPercent compares two /proc/stat samples taken one window apart.
func (r *Reader) CPUPercent(ctx context.Context) (float64, error) {
	idle0, total0, err := r.cpuTimes()
	if err != nil {
		return 0, err
	}

	timer := time.NewTimer(r.sample)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	idle1, total1, err := r.cpuTimes()
	if err != nil {
		return 0, err
	}
	dTotal := total1 - total0
	if dTotal == 0 {
		return 0, nil
	}
	return 100 * float64(dTotal-(idle1-idle0)) / float64(dTotal), nil
}

// cpuTimes returns idle and total jiffies from the aggregate cpu line.
func (r *Reader) cpuTimes() (idle, total uint64, err error) {
	data, err := os.ReadFile(r.statPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", r.statPath, err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected %s line %q", r.statPath, line)
	}
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse %s field %d: %w", r.statPath, i+1, err)
		}
		total += v
		// idle and iowait
		if i == 3 || i == 4 {
			idle += v
		}
	}
	return idle, total, nil
}

// RAMPercent reports memory in use, excluding buffers.
func (r *Reader) RAMPercent() (float64, error) {
	var si unix.Sysinfo_t
	if err := r.sysinfo(&si); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	total := uint64(si.Totalram)
	if total == 0 {
		return 0, fmt.Errorf("sysinfo: zero total ram")
	}
	used := total - uint64(si.Freeram) - uint64(si.Bufferram)
	return 100 * float64(used) / float64(total), nil
}
