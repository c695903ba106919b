package main

import (
	"log"

	"github.com/F3-Nation/f3-nation-auth/cmd"
)

func main() {
	if err := cmd.RootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
