package main

import "skywatch/internal/cli"

func main() {
	cli.Execute()
}
