package main

import "github.com/forPelevin/yt2text/internal/cli"

func main() {
	cli.Main()
}
