package main

import "ghostline-core/internal/cmd"

func main() {
	cmd.Execute()
}
