package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseCPUList parses a core list such as "4-7" or "0,2,4-5" into core
// numbers
func parseCPUList(s string) ([]int, error) {

	var cores []int

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")

		first, err := strconv.Atoi(lo)
		if err != nil || first < 0 {
			return nil, fmt.Errorf("invalid cpu %q", part)
		}

		last := first
		if isRange {
			last, err = strconv.Atoi(hi)
			if err != nil || last < first {
				return nil, fmt.Errorf("invalid cpu range %q", part)
			}
		}

		for c := first; c <= last; c++ {
			cores = append(cores, c)
		}
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("empty cpu list %q", s)
	}

	return cores, nil
}
