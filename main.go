package main

import "github.com/edgeflare/sqlrest/cmd/sqlrest"

func main() {
	sqlrest.Main()
}
