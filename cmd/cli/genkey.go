package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replypilot/replypilot/pkg/apikey"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate an admin API key",
	Long: `Generates a new admin API key. Give the key to the operator and set
ADMIN_API_KEY_HASH on the server to the printed hash.`,
	Run: func(cmd *cobra.Command, args []string) {
		secret := viper.GetString("api_key_secret")
		if secret == "" {
			fmt.Println("Error: no api_key_secret configured; set API_KEY_SECRET")
			return
		}

		key, hash, err := apikey.GenerateKey("rp", secret)
		if err != nil {
			fmt.Printf("Error generating key: %v\n", err)
			return
		}
		fmt.Printf("API key:  %s\n", key)
		fmt.Printf("Key hash: %s\n", hash)
	},
}
