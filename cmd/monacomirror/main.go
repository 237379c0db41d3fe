package main

import (
	"monaco-mirror/internal/cli"
)

func main() {
	cli.Execute()
}
