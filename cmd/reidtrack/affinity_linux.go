//go:build linux

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// setCPUAffinity pins the process to the given cores, used to keep tracking
// on the fast cores of big.LITTLE boards
func setCPUAffinity(cores []int) error {

	var set unix.CPUSet
	set.Zero()

	for _, c := range cores {
		set.Set(c)
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("set cpu affinity: %w", err)
	}

	return nil
}
