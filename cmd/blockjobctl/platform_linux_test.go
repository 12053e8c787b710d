package main

func fileDevicesSupported() bool { return true }
