package main

import "github.com/Ratio1/rtdb_sdk_go/internal/cli"

func main() {
	cli.Execute()
}
