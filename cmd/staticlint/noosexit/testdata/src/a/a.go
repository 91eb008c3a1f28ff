package main

import (
	"os"
	sys "syscall"
)

func helper() {
	os.Exit(3)
}

func main() {
	defer helper()

	if len(os.Args) > 5 {
		sys.Exit(2) // want "avoid calling syscall.Exit in main.main"
	}

	func() {
		os.Exit(1) // want "avoid calling os.Exit in main.main"
	}()

	os.Exit(0) // want "avoid calling os.Exit in main.main"
}
