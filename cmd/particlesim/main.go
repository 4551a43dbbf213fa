package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cfoust/particles/pkg/config"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var CLI struct {
	Debug bool `help:"Whether to enable debug logging."`

	Run struct {
		Configs   []string `arg:"" optional:"" name:"configs" help:"Configuration files for the simulation." type:"existingfile"`
		Ticks     int      `help:"Number of ticks to simulate." default:"300"`
		Particles int      `help:"Number of particles to drop onto the floor." default:"32"`
		Seed      int64    `help:"Seed for particle placement." default:"1"`
		Restore   string   `help:"Load particles from a snapshot instead of spawning them." type:"existingfile"`
		Snapshot  string   `help:"Write the final particles to this file." type:"path"`
		Wav       string   `help:"Render collision sounds to this WAV file." type:"path"`
	} `cmd:"" help:"Run a headless particle simulation."`

	Config struct {
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files to merge." type:"existingfile"`
	} `cmd:"" help:"Write the effective configuration to standard output."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func configCommand(paths []string) error {
	cfg, err := config.Process(paths)
	if err != nil {
		return err
	}

	data, err := cfg.YAML()
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(data)
	return err
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx := kong.Parse(&CLI,
		kong.Name("particlesim"),
		kong.Description("a headless particle collision simulator"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	switch ctx.Command() {
	case "run":
		fallthrough
	case "run <configs>":
		err := runCommand()
		if err != nil {
			writeError(err)
		}
	case "config":
		fallthrough
	case "config <configs>":
		err := configCommand(CLI.Config.Configs)
		if err != nil {
			writeError(err)
		}
	}
}
