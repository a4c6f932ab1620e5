/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/ssargent/recordkit/cmd/recordkit/cmd"
)

func main() {
	cmd.Execute()
}
