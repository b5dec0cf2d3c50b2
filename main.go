package main

import "github.com/fbz-tec/pgxserve/cmd"

func main() {
	cmd.Execute()
}
