package main

import "auction-engine/internal/cli"

func main() {
	cli.Execute()
}
