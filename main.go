package main

import "github.com/anna0613/linebot-control-plane/cmd"

func main() {
	cmd.Execute()
}
