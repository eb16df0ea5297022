package main

import (
	"whalefeed/internal/cli"
)

func main() {
	cli.Execute()
}
