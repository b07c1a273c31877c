package main

import "fleet/cmd"

func main() {
	cmd.Execute()
}
