package main

import "github.com/ValentinKolb/iDict/cmd"

func main() {
	cmd.Execute()
}
