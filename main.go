package main

import "github.com/pders01/clawkeep/cmd"

func main() {
	cmd.Execute()
}
