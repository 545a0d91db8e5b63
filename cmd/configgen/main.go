package main

import (
	"flag"
	"log"

	"github.com/danmuck/eventport/internal/config"
)

func main() {
	kind := flag.String("kind", "scenario", "config kind: scenario|eventportd")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing scenario file")
	input := flag.String("input", "", "scenario path for validation (defaults to cmd/eventportd/scenario.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = "cmd/eventportd/scenario.toml"
		}
		scenario, err := config.LoadScenario(path)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated scenario %q at %s (%d dispatches)", scenario.Name, path, scenario.Dispatches())
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "scenario":
			target = "cmd/eventportd/scenario.toml"
		case "eventportd":
			target = "cmd/eventportd/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
