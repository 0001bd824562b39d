package main

import "pattern-alerts/internal/cli"

func main() {
	cli.Execute()
}
