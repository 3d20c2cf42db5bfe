// Command risk-classify runs the local rule cascade over one sensor reading
// and prints the assessment as JSON. The reading is read from the file named
// by the first argument, or from stdin.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-disaster-risk/internal/config"
	"github.com/mr1hm/go-disaster-risk/internal/logging"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/risk"
)

func main() {
	pretty := flag.Bool("pretty", false, "indent the output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-pretty] [reading.json]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	var in io.Reader = os.Stdin
	if path := flag.Arg(0); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			logging.Fatalf("Failed to open reading: %v", err)
		}
		defer f.Close()
		in = f
	}

	var reading models.SensorReadingInput
	if err := json.NewDecoder(in).Decode(&reading); err != nil {
		logging.Fatalf("Failed to decode reading: %v", err)
	}

	a := risk.ClassifyWith(reading.ApplyDefaults(), cfg.Engine.Bands(), risk.Options{
		ScoreBanding: cfg.Engine.ScoreBanding,
	})

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(a); err != nil {
		logging.Fatalf("Failed to write assessment: %v", err)
	}
}
