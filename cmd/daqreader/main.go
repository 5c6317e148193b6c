package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	daqcore "github.com/vme-daq/strax-reader"
	"github.com/vme-daq/strax-reader/internal/rundb"
)

// verifyConfigFile checks that path/filename exists, creating the
// directory and file if they don't, so viper always has something to
// read.
func verifyConfigFile(path, filename string) error {
	path = strings.Replace(path, "$HOME", os.Getenv("HOME"), 1)

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(path, 0o775); err != nil {
			return err
		}
	}

	fullname := fmt.Sprintf("%s/%s", path, filename)
	if _, err := os.Stat(fullname); os.IsNotExist(err) {
		f, err := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0o664)
		if err != nil {
			return err
		}
		f.Close()
	}
	return nil
}

func setupViper(uri string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("strax_output_path", "./")
	v.SetDefault("compressor", "lz4")

	const path string = "$HOME/.config/daqreader"
	const filename string = "config"
	const suffix string = ".yaml"
	if err := verifyConfigFile(path, filename+suffix); err != nil {
		return nil, err
	}

	v.SetConfigName(filename)
	v.AddConfigPath("/etc/daqreader")
	v.AddConfigPath(path)
	v.AddConfigPath(".")
	if uri != "" {
		v.SetConfigFile(uri)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return v, nil
}

func main() {
	id := flag.String("id", "", "run identifier")
	uri := flag.String("uri", "", "config file path or URI")
	dbAddr := flag.String("db", "", "ClickHouse address for the run database (host:port); empty disables persistence")
	logDir := flag.String("logdir", "", "directory for rotated log files; empty logs to stderr")
	runReader := flag.Bool("reader", false, "run as a readout/formatter host")
	runCC := flag.Bool("cc", false, "run as the command-and-control host (not implemented by this core; the command poller is an external collaborator)")
	armDelay := flag.Duration("arm-delay", 2*time.Second, "settling delay after board construction during arm")
	logRetention := flag.Int("log-retention", 14, "days of rotated logs to retain")
	flag.Parse()

	if *logDir != "" {
		daqcore.SetLogFile(fmt.Sprintf("%s/daqreader.log", *logDir), *logRetention)
	}

	v, err := setupViper(*uri)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *id != "" {
		n, err := strconv.ParseInt(*id, 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "--id must be a run number: %v\n", err)
			os.Exit(1)
		}
		v.Set("number", n)
	}

	hostname, err := os.Hostname()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	opts := daqcore.NewOptionStore(v, hostname)

	ctrl := daqcore.NewController(opts)
	if *dbAddr != "" {
		db := rundb.Connect(*dbAddr)
		if db.IsConnected() {
			go db.Run(make(chan struct{}))
		}
		ctrl.SetRunDB(db)
	}

	if !*runReader && !*runCC {
		fmt.Fprintln(os.Stderr, "must pass --reader or --cc")
		os.Exit(1)
	}
	if *runCC {
		fmt.Fprintln(os.Stderr, "--cc is out of scope for this core; the command poller is an external collaborator")
		os.Exit(1)
	}

	ctrl.SetArmDelay(*armDelay)

	sig := make(chan os.Signal, 1)
	if err := runUntilSignal(ctrl, opts, sig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
