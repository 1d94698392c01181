package main

import "github.com/Norgate-AV/ccbuild/cmd"

func main() {
	cmd.Execute()
}
