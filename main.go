package main

import "github.com/KaramelBytes/climalyzer/cmd"

func main() {
	cmd.Execute()
}
