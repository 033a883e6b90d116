package main

import "github.com/audiolibrelab/keycapture/cmd"

func main() {
	cmd.Execute()
}
