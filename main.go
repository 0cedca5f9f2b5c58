package main

import "github.com/khanhnv2901/secprobe/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
