package main

import "github.com/roarinpenguin/roarinca/cmd/roarinca/cmd"

func main() {
	cmd.Execute()
}
