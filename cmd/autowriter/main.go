package main

import "github.com/vietddude/autowriter/internal/cli"

func main() {
	cli.Execute()
}
