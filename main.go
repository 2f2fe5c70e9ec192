package main

import (
	"ncmfm/cmd"
)

func main() {
	cmd.Execute()
}
