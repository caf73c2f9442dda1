package main

import (
	"github.com/shizukutanaka/Kaifuku/cmd/kaifuku/commands"
)

func main() {
	commands.Execute()
}
