/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/vitapersonal/authserver/cmd"

func main() {
	cmd.Execute()
}
