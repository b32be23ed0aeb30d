package main

import "github.com/adamgarcia4/goLearning/seqcast/cmd"

func main() {
	cmd.Execute()
}
