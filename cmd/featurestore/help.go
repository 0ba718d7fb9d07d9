package main

import "fmt"

const version = "0.3.0"

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("featurestore version %s\n", version)
}

// PrintHelp prints usage information
func PrintHelp() {
	fmt.Println("featurestore - relational feature store connector")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Println("USAGE:")
	fmt.Println("  featurestore [command] [options]")
	fmt.Println()

	fmt.Println("COMMANDS:")
	fmt.Println("  --prepare                 Create or migrate feature set tables")
	fmt.Println("  --retrieve <request.yaml> Point-in-time join of entity files with feature sets")
	fmt.Println("  --ingest                  Write feature rows from Kafka or RabbitMQ")
	fmt.Println("  --create-config <driver>  Write sample featurestore.yaml")
	fmt.Println()

	fmt.Println("OPTIONS:")
	fmt.Println("  --config <file>           Configuration file (default: featurestore.yaml)")
	fmt.Println("  --metrics-addr <addr>     Serve /metrics while the command runs")
	fmt.Println("  --dev                     Use in-process miniredis for the result log")
	fmt.Println("  --verbose                 Debug logging")
	fmt.Println()

	fmt.Println("REQUEST FILE:")
	fmt.Println("  correlation_id: train-2026-03")
	fmt.Println("  entity_source:")
	fmt.Println("    format: CSV")
	fmt.Println("    file_uris: [s3://bucket/entities/part-0.tsv]")
	fmt.Println("  feature_sets:")
	fmt.Println("    - ref: default/driver_stats")
	fmt.Println("      features: [conv_rate]")
}
