package main

import (
	"github.com/loraedge/loramac/cmd/loramac-sim/cmd"
)

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
