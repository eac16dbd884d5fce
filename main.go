package main

import "github.com/theirongolddev/incomesync/cmd"

func main() {
	cmd.Execute()
}
