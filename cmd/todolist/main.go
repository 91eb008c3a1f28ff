// Command todolist runs the multi-user todo HTTP API.
package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/patric-chuzhbe/todolist/internal/app"
)

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

func main() {
	fmt.Printf("Build version: %s\nBuild date: %s\nBuild commit: %s\n", buildVersion, buildDate, buildCommit)

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {
	theApp, err := app.New()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, theApp.Close())
	}()

	return theApp.Run()
}
