package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check a running service instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			address, _ := cmd.Flags().GetString("address")
			return runStatus(address)
		},
	}

	cmd.Flags().String("address", "http://localhost:8080", "Service base URL")

	return cmd
}

func runStatus(address string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	response, err := client.Get(address + "/health")
	if err != nil {
		return fmt.Errorf("service unreachable at %s: %w", address, err)
	}
	defer response.Body.Close()

	var health map[string]any
	if err := json.NewDecoder(response.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	fmt.Printf("Status:  %v\n", health["status"])
	fmt.Printf("Service: %v\n", health["service"])
	fmt.Printf("Time:    %v\n", health["timestamp"])

	return nil
}
