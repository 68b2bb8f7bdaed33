package main

import "github.com/tonimelisma/graph-dispatch-mcp/cmd"

func main() {
	cmd.Execute()
}
