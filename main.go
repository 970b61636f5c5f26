package main

import "github.com/vibast-solutions/ms-go-charges/cmd"

func main() {
	cmd.Execute()
}
