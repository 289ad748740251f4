package main

import "github.com/statforge/pairtrader/cmd"

func main() {
	cmd.Execute()
}
