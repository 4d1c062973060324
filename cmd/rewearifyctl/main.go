package main

import "github.com/rewearify/rewearify/cmd/rewearifyctl/cmd"

func main() {
	cmd.Execute()
}
