package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"dbrouter/pkg/client"
	"dbrouter/pkg/log"
)

const (
	defaultServerURL = "http://127.0.0.1:8080"
	commandTimeout   = time.Minute
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] status | switch <index> | retry <index>\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	// Initialize logger first
	_ = log.Logger

	addr := flag.String("addr", defaultServerURL, "dbrouter server URL")
	token := flag.String("token", os.Getenv("ADMIN_TOKEN"), "Admin bearer token (defaults to $ADMIN_TOKEN)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	routerClient := client.New(*addr, *token)

	switch args[0] {
	case "status":
		status, err := routerClient.Status(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch router status")
		}
		if err := client.WriteStatus(os.Stdout, status); err != nil {
			log.Fatal().Err(err).Msg("Failed to print router status")
		}

	case "switch":
		index := parseIndex(args)
		resp, err := routerClient.Switch(ctx, index)
		if err != nil {
			log.Fatal().Err(err).Int("index", index).Msg("Failed to switch active backend")
		}
		fmt.Printf("active backend: %d -> %d\n", resp.PreviousIndex, resp.ActiveIndex)

	case "retry":
		index := parseIndex(args)
		backend, err := routerClient.Retry(ctx, index)
		if err != nil {
			log.Fatal().Err(err).Int("index", index).Msg("Failed to retry backend")
		}
		fmt.Printf("backend %d available, size %s\n", backend.Index, log.Bytes(backend.SizeBytes))

	default:
		usage()
		os.Exit(2)
	}
}

func parseIndex(args []string) int {
	if len(args) != 2 {
		usage()
		os.Exit(2)
	}
	index, err := strconv.Atoi(args[1])
	if err != nil || index < 0 {
		log.Fatal().Str("index", args[1]).Msg("Backend index must be a non-negative integer")
	}
	return index
}
