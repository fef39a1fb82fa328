package main

import "github.com/ppiankov/busgate/internal/cli"

func main() {
	cli.Execute()
}
