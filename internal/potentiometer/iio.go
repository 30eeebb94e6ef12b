package potentiometer

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// IIOReader reads Linux IIO sysfs raw channel files such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type IIOReader struct {
	paths []string
}

// NewIIOReader reads one channel per path.
func NewIIOReader(paths []string) *IIOReader {
	return &IIOReader{paths: append([]string(nil), paths...)}
}

func (r *IIOReader) Len() int {
	return len(r.paths)
}

func (r *IIOReader) Read(index int) (uint16, error) {
	if index < 0 || index >= len(r.paths) {
		return 0, fmt.Errorf("iio channel %d out of range", index)
	}
	data, err := os.ReadFile(r.paths[index])
	if err != nil {
		return 0, fmt.Errorf("read iio channel: %w", err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", r.paths[index], err)
	}
	return uint16(v), nil
}
