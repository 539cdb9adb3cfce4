package main

import (
	"github.com/sidkik/odbsync/cmd"
	"github.com/sidkik/odbsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
