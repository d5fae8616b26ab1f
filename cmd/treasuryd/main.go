package main

import (
	"log"

	"treasuryd/daemon"
)

func main() {
	if err := daemon.Main(); err != nil {
		log.Fatalf("treasuryd: %v", err)
	}
}
