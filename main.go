package main

import "github.com/maxmcd/nodehome/internal/command"

func main() {
	command.RunCLI()
}
