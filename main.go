package main

import "guardex/cmd"

func main() {
	cmd.Execute()
}
