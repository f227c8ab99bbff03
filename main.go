package main

import "github.com/andresmejia3/depotscan/cmd"

func main() {
	cmd.Execute()
}
