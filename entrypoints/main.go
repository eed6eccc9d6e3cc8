package main

import (
	"github.com/Laisky/synset-tree/cmd"
)

func main() {
	cmd.Execute()
}
