package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect and manage monitored accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Run: func(cmd *cobra.Command, args []string) {
		var accounts []struct {
			ID                string `json:"id"`
			Name              string `json:"name"`
			OwnerPhone        string `json:"owner_phone"`
			MonitoringPaused  bool   `json:"monitoring_paused"`
			SubscriptionState string `json:"subscription_state"`
		}
		if err := adminGet("/admin/accounts", &accounts); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		for _, a := range accounts {
			status := "active"
			if a.MonitoringPaused {
				status = "paused"
			}
			fmt.Printf("%-38s %-24s %-14s %-9s %s\n", a.ID, a.Name, a.OwnerPhone, status, a.SubscriptionState)
		}
	},
}

var accountsPauseCmd = &cobra.Command{
	Use:   "pause <account-id>",
	Short: "Pause review monitoring for an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := adminPost("/admin/accounts/" + args[0] + "/pause"); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Account %s paused\n", args[0])
	},
}

var accountsResumeCmd = &cobra.Command{
	Use:   "resume <account-id>",
	Short: "Resume review monitoring for an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := adminPost("/admin/accounts/" + args[0] + "/resume"); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Account %s resumed\n", args[0])
	},
}

func init() {
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsPauseCmd)
	accountsCmd.AddCommand(accountsResumeCmd)
}

func serverURL() string {
	if url := viper.GetString("server_url"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func adminRequest(method, path string) (*http.Response, error) {
	key := viper.GetString("api_key")
	if key == "" {
		return nil, fmt.Errorf("no api_key configured; set API_KEY or add it to the config file")
	}

	req, err := http.NewRequest(method, serverURL()+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error connecting to server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return resp, nil
}

func adminGet(path string, out any) error {
	resp, err := adminRequest(http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func adminPost(path string) error {
	resp, err := adminRequest(http.MethodPost, path)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
