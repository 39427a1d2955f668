package main

import "github.com/audiolibrelab/audiorec/cmd"

func main() {
	cmd.Execute()
}
