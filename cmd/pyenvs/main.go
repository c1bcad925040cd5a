package main

import "pyenvs/internal/cli"

func main() {
	cli.Execute()
}
