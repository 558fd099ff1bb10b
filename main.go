package main

import "github.com/evaleval/evalsync/cmd"

func main() {
	cmd.Execute()
}
