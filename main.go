package main

import "github.com/jake-scott/ufanet-bridge/cmd"

func main() {
	cmd.Execute()
}
