package main

import "openblock/internal/cli"

func main() {
	cli.Execute()
}
