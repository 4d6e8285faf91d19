package main

import "github.com/mlahti/bookfetch/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
