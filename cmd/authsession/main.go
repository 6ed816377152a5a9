package main

import "github.com/MrEthical07/authsession/cmd/authsession/cmd"

func main() {
	cmd.Execute()
}
