package main

import "flag"

// Flags holds all command-line flags
type Flags struct {
	// Commands
	Prepare  *bool
	Retrieve *string
	Ingest   *bool

	// Options
	Config      *string
	MetricsAddr *string
	Dev         *bool
	Verbose     *bool

	// Config Creation
	CreateConfig *string

	// Misc
	Version *bool
	Help    *bool
}

// ParseFlags defines and parses all command-line flags
func ParseFlags() *Flags {
	f := &Flags{}

	// Commands
	f.Prepare = flag.Bool("prepare", false, "Create or migrate tables of all configured feature sets")
	f.Retrieve = flag.String("retrieve", "", "Run historical retrieval from request YAML file (file path)")
	f.Ingest = flag.Bool("ingest", false, "Consume feature rows from the configured broker and write them")

	// Options
	f.Config = flag.String("config", "featurestore.yaml", "Configuration file path")
	f.MetricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on address (e.g. :9102)")
	f.Dev = flag.Bool("dev", false, "Dev mode: in-process miniredis for the retrieval result log")
	f.Verbose = flag.Bool("verbose", false, "Enable debug logging")

	// Config Creation
	f.CreateConfig = flag.String("create-config", "", "Write sample config for driver: sqlite, pgx, mysql, sqlserver")

	// Misc
	f.Version = flag.Bool("version", false, "Show version information")
	f.Help = flag.Bool("help", false, "Show help")

	flag.Parse()
	return f
}
