package main

import "github.com/ppiankov/phasegate/internal/cli"

func main() {
	cli.Execute()
}
