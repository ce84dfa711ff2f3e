package main

import "github.com/kozaktomas/neural-scan/cmd"

func main() {
	cmd.Execute()
}
