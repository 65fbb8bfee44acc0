package main

import (
	"github.com/turtacn/contentsdk/cmd/cli"
)

// main is the entry point for the contentctl command-line tool.
// main 是 contentctl 命令行工具的入口点。
func main() {
	cli.Execute()
}
