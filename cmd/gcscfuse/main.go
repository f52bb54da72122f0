package main

import "github.com/raj-prince/gcscfuse/cmd/gcscfuse/cmd"

func main() {
	cmd.Execute()
}
