package main

import "github.com/citelinker/resolver/internal/cli"

func main() {
	cli.Execute()
}
