// Package main provides the strest-mockserver CLI binary: a plain-HTTP
// target exposing endpoints that simulate latency, errors, rate limiting,
// circuit breaking, and backpressure, for exercising strest against
// something other than a live service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lythaeon/strest/internal/mockserver"
)

func main() {
	addr := flag.String("addr", ":3000", "HTTP server address")
	streamChunks := flag.Int("stream-chunks", 0, "Chunk count for /stream responses (0 = default)")
	streamDelay := flag.Int("stream-delay-ms", 0, "Per-chunk delay for /stream responses (0 = default)")
	flag.Parse()

	config := mockserver.DefaultConfig()
	config.Addr = *addr
	if *streamChunks > 0 || *streamDelay > 0 {
		config.SetBehavior(&mockserver.BehaviorProfile{
			StreamingChunkCount:   *streamChunks,
			StreamingChunkDelayMs: *streamDelay,
		})
	}

	server := mockserver.New(config)
	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting mock server: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Mock target server listening on %s\n", server.Addr())
	fmt.Printf("Base URL: %s\n", server.BaseURL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Stop(ctx)
}
