package main

import (
	"github.com/kong-mcp/bridge/pkg/cli"
)

// Version is set via ldflags at build time.
var Version string

func main() {
	cli.Execute(Version)
}
