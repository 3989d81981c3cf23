package main

import "github.com/john/memchat/cmd"

func main() {
	cmd.Execute()
}
