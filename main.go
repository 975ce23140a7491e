package main

import "github.com/nextlevelbuilder/recall/cmd"

func main() {
	cmd.Execute()
}
