package config

import "runtime"

// maxWorkersDefault returns host_cpu_count - 1, floored at 1, matching
// the adaptive pool's upper bound (§4.8).
func maxWorkersDefault() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}
