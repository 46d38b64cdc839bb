package main

import "chatq/cmd"

func main() {
	cmd.Execute()
}
