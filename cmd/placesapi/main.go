// Command placesapi serves the places REST API.
package main

import (
	"log"

	"github.com/patric-chuzhbe/yourplaces/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		log.Fatalf("could not start: %v", err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		theApp.Close()
		log.Fatalf("server stopped: %v", err)
	}
}
