/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/nakshatratalks/consult-engine/cli/cmd"

func main() {
	cmd.Execute()
}
