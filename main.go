package main

import "alsolved/cmd"

func main() {
	cmd.Execute()
}
