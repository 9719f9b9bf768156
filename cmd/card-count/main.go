package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/jasonk0/card-count/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	if err := app.Run(*configPath); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
