package main

import "github.com/zfogg/photostream/cli/internal/cmd"

func main() {
	cmd.Execute()
}
