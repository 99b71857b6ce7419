package main

import "github.com/BioHazard786/Ghostlink/cmd"

func main() {
	cmd.Execute()
}
