package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "replypilot",
	Short: "ReplyPilot admin CLI",
	Long:  `Operate the ReplyPilot review pipeline: inspect accounts, pause monitoring, mint admin keys.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.replypilot.yaml)")
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(genkeyCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".replypilot")
	}

	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func main() {
	Execute()
}
