// enginecheck exercises the engine REST API with the configured
// credentials. It is a connectivity smoke test, not part of the relay.
//
// Required environment variables:
//
//	ENGINE_REST_URL       - Engine REST base URL
//	ENGINE_API_KEY_ID     - API key ID issued for this relay
//	ENGINE_API_KEY_SECRET - API key secret
//	ENGINE_SERVER_ID      - Server to look up
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/emberworks/enginelink/internal/api"
	"github.com/emberworks/enginelink/internal/auth"
)

func main() {
	restURL := os.Getenv("ENGINE_REST_URL")
	if restURL == "" {
		log.Fatalf("ENGINE_REST_URL is not set")
	}

	creds, err := auth.NewCredentials(
		os.Getenv("ENGINE_API_KEY_ID"),
		os.Getenv("ENGINE_API_KEY_SECRET"),
		os.Getenv("ENGINE_SERVER_ID"),
	)
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}

	client := api.NewClient(
		restURL,
		creds,
		api.WithTimeout(30*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Test 1: Engine Status
	fmt.Println("=== Testing Engine Status ===")
	status, err := client.GetStatus(ctx)
	if err != nil {
		log.Fatalf("GetStatus failed: %v", err)
	}
	fmt.Printf("Engine Active: %v\n", status.Active)
	fmt.Printf("Engine Version: %s\n", status.Version)
	fmt.Printf("Engine Time: %s\n", time.UnixMilli(status.Time).UTC().Format(time.RFC3339))

	// Test 2: Server Lookup
	serverID := creds.ServerID
	fmt.Printf("\n=== Testing Server Lookup (%s) ===\n", serverID)
	server, err := client.GetServerInfo(ctx, serverID)
	if err != nil {
		log.Fatalf("GetServerInfo failed: %v", err)
	}
	fmt.Printf("Name: %s\n", server.Name)
	fmt.Printf("Region: %s\n", server.Region)
	fmt.Printf("Capacity: %d\n", server.Capacity)
	fmt.Printf("Online: %d\n", server.Online)

	// Test 3: Socket URL construction
	socketURL := os.Getenv("ENGINE_SOCKET_URL")
	if socketURL != "" {
		fmt.Println("\n=== Testing Socket URL ===")
		connectURL, err := creds.ConnectURL(socketURL)
		if err != nil {
			log.Fatalf("ConnectURL failed: %v", err)
		}
		fmt.Printf("Connect URL: %s\n", auth.Redacted(connectURL))
	}

	fmt.Println("\n=== All engine checks passed! ===")
}
