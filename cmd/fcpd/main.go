package main

import "fcpd/cmd/fcpd/command"

func main() {
	command.Execute()
}
