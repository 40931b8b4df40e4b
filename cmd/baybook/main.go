package main

import "github.com/example/baybook/cmd"

func main() {
	cmd.Execute()
}
