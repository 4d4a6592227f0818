/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "tinyclaw/cmd"

func main() {
	cmd.Execute()
}
