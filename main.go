package main

import "github.com/maru-labs/maru/cmd"

func main() {
	cmd.Execute()
}
