package main

import "github.com/radiosilence/anthropic-play/cmd"

func main() {
	cmd.Execute()
}
