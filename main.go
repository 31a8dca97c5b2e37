package main

import "github.com/formulapm/access-management/cmd"

func main() {
	cmd.Execute()
}
