//go:build !linux

package main

func fileDevicesSupported() bool { return false }
