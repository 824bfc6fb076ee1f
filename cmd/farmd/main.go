package main

import "reward-farming/internal/cli"

func main() {
	cli.Execute()
}
