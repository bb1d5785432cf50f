//go:build !linux

package main

import "errors"

func setCPUAffinity([]int) error {
	return errors.New("cpu affinity is only supported on linux")
}
