package main

import "github.com/vibast-solutions/ms-go-unlocks/cmd"

func main() {
	cmd.Execute()
}
