// Command gatewayctl provides CLI tools for interacting with a running
// gateway.
//
// # Commands
//
// status: Display gateway health and registered service instances.
//
//	gatewayctl status --gateway=http://localhost:8080
//
// register: Register a service instance with the gateway registry.
//
//	gatewayctl register --gateway=http://localhost:8080 --service=users --address=10.0.0.5:9000
//
// broadcast: Publish a message to a broadcast channel.
//
//	gatewayctl broadcast --gateway=http://localhost:8080 --channel=news --message="Hello"
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/ruvnet/alienator-sub000/broadcast"
	"github.com/ruvnet/alienator-sub000/gateway"
	"github.com/ruvnet/alienator-sub000/registry"
)

const defaultGatewayURL = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = runStatus(args)
	case "register":
		err = runRegister(args)
	case "deregister":
		err = runDeregister(args)
	case "channels":
		err = runChannels(args)
	case "broadcast":
		err = runBroadcast(args)
	case "metrics":
		err = runMetrics(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gatewayctl - CLI tools for the gateway

Usage:
  gatewayctl <command> [options]

Commands:
  status      Display gateway health and registered services
  register    Register a service instance
  deregister  Remove a service instance
  channels    List or create broadcast channels
  broadcast   Publish a message to a channel
  metrics     Display broadcast metrics

Run 'gatewayctl <command> --help' for command-specific options.`)
}

// --- Status Command ---

func runStatus(args []string) error {
	gatewayURL := defaultGatewayURL
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--help", "-h":
			fmt.Println("gatewayctl status --gateway=<url>")
			return nil
		}
	}

	var health gateway.HealthResponse
	if err := getJSON(gatewayURL+"/gateway/health", &health); err != nil {
		return err
	}

	fmt.Printf("Gateway: %s (%s)\n", gatewayURL, health.Status)
	fmt.Printf("Requests: %d  Retries: %d  Failures: %d  NotFound: %d  Unavailable: %d\n",
		health.Requests, health.Retries, health.Failures, health.NotFound, health.Unavailable)

	if len(health.Services) == 0 {
		fmt.Println("No registered services")
		return nil
	}

	names := make([]string, 0, len(health.Services))
	for name := range health.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Services:")
	for _, name := range names {
		svc := health.Services[name]
		fmt.Printf("  %-20s healthy=%d unhealthy=%d\n", name, svc.Healthy, svc.Unhealthy)
	}
	return nil
}

// --- Register / Deregister Commands ---

func runRegister(args []string) error {
	var (
		gatewayURL = defaultGatewayURL
		service    string
		instanceID string
		address    string
	)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--service", "-s":
			i++
			if i < len(args) {
				service = args[i]
			}
		case "--id":
			i++
			if i < len(args) {
				instanceID = args[i]
			}
		case "--address", "-a":
			i++
			if i < len(args) {
				address = args[i]
			}
		case "--help", "-h":
			fmt.Println("gatewayctl register --gateway=<url> --service=<name> --address=<host:port> [--id=<instance-id>]")
			return nil
		}
	}

	if service == "" || address == "" {
		return fmt.Errorf("--service and --address are required")
	}

	var resp registry.RegisterResponse
	err := postJSON(gatewayURL+"/gateway/registry/services", registry.RegisterRequest{
		ServiceName: service,
		InstanceID:  instanceID,
		Address:     address,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s instance %s at %s\n", service, resp.InstanceID, address)
	return nil
}

func runDeregister(args []string) error {
	var (
		gatewayURL = defaultGatewayURL
		service    string
		instanceID string
	)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--service", "-s":
			i++
			if i < len(args) {
				service = args[i]
			}
		case "--id":
			i++
			if i < len(args) {
				instanceID = args[i]
			}
		case "--help", "-h":
			fmt.Println("gatewayctl deregister --gateway=<url> --service=<name> --id=<instance-id>")
			return nil
		}
	}

	if service == "" || instanceID == "" {
		return fmt.Errorf("--service and --id are required")
	}

	url := fmt.Sprintf("%s/gateway/registry/services/%s/%s", gatewayURL, service, instanceID)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	fmt.Printf("Deregistered %s instance %s\n", service, instanceID)
	return nil
}

// --- Channels Command ---

func runChannels(args []string) error {
	var (
		gatewayURL = defaultGatewayURL
		createID   string
		createName string
	)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--create":
			i++
			if i < len(args) {
				createID = args[i]
			}
		case "--name":
			i++
			if i < len(args) {
				createName = args[i]
			}
		case "--help", "-h":
			fmt.Println("gatewayctl channels --gateway=<url> [--create=<id> --name=<name>]")
			return nil
		}
	}

	if createID != "" {
		if createName == "" {
			createName = createID
		}
		var ch broadcast.Channel
		err := postJSON(gatewayURL+"/broadcast/channels", broadcast.CreateChannelRequest{
			ID:   createID,
			Name: createName,
		}, &ch)
		if err != nil {
			return err
		}
		fmt.Printf("Created channel %s (%s)\n", ch.ID, ch.Name)
		return nil
	}

	var list broadcast.ChannelListResponse
	if err := getJSON(gatewayURL+"/broadcast/channels", &list); err != nil {
		return err
	}

	if len(list.Channels) == 0 {
		fmt.Println("No channels")
		return nil
	}
	for _, ch := range list.Channels {
		fmt.Printf("  %-20s %-10s subscribers=%d created=%s\n",
			ch.ID, ch.Status, ch.SubscriberCount, ch.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// --- Broadcast Command ---

func runBroadcast(args []string) error {
	var (
		gatewayURL = defaultGatewayURL
		channelID  string
		message    string
	)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--channel", "-c":
			i++
			if i < len(args) {
				channelID = args[i]
			}
		case "--message", "-m":
			i++
			if i < len(args) {
				message = args[i]
			}
		case "--help", "-h":
			fmt.Println("gatewayctl broadcast --gateway=<url> --channel=<id> --message=<text>")
			return nil
		}
	}

	if channelID == "" || message == "" {
		return fmt.Errorf("--channel and --message are required")
	}

	var resp broadcast.BroadcastResponse
	url := fmt.Sprintf("%s/broadcast/channels/%s/broadcast", gatewayURL, channelID)
	if err := postJSON(url, broadcast.BroadcastRequest{Payload: message}, &resp); err != nil {
		return err
	}

	fmt.Printf("Broadcast to channel %s\n", channelID)
	return nil
}

// --- Metrics Command ---

func runMetrics(args []string) error {
	gatewayURL := defaultGatewayURL
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--help", "-h":
			fmt.Println("gatewayctl metrics --gateway=<url>")
			return nil
		}
	}

	var metrics broadcast.Metrics
	if err := getJSON(gatewayURL+"/broadcast/metrics", &metrics); err != nil {
		return err
	}

	fmt.Printf("Channels: %d\n", metrics.TotalChannels)
	fmt.Printf("Subscriptions: %d\n", metrics.TotalSubscriptions)
	fmt.Printf("Messages: %d broadcast, %d delivered\n",
		metrics.MessagesBroadcast, metrics.MessagesDelivered)
	if !metrics.LastActivity.IsZero() {
		fmt.Printf("Last activity: %s\n", metrics.LastActivity.Format(time.RFC3339))
	}
	return nil
}

// --- HTTP helpers ---

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func getJSON(url string, out any) error {
	resp, err := httpClient().Get(url)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := httpClient().Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
