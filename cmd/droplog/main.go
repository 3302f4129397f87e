package main

import "github.com/droplog/droplog/internal/cli"

func main() {
	cli.Execute()
}
