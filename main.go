package main

import "nimble-sync/cmd"

func main() {
	cmd.Execute()
}
