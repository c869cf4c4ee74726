package main

import (
	"github.com/robotalks/disconnect/pkg/cli/sh"
	"github.com/robotalks/disconnect/pkg/config"

	_ "github.com/robotalks/disconnect/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	config.SetupFlags()
}

func main() {
	sh.Main()
}
