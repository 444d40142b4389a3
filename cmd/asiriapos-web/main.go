package main

import "github.com/ideamans/asiriapos-web/cmd/asiriapos-web/cmd"

func main() {
	cmd.Execute()
}
