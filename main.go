package main

import "github.com/northcutted/vuln-gate/cmd"

func main() {
	cmd.Execute()
}
