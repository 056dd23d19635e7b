package main

import "precinct-nav/cli"

func main() {
	cli.Execute()
}
