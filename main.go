package main

import "github/itish2003/docbot/commands"

func main() {
	commands.Execute()
}
