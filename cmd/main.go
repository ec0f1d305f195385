package main

import "github.com/dyike/cortexmarket/internal/cli"

func main() {
	cli.Execute()
}
