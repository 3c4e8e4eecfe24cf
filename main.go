package main

import "github.com/ValentinKolb/solo/cmd"

func main() {
	cmd.Execute()
}
