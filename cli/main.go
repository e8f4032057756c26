package main

import "github.com/project-imas/securefoundation/cli/cmd"

func main() {
	cmd.Execute()
}
