package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "carlo",
	Short: "Inspect and migrate persisted chat state",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			return err
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
		return nil
	},
}

func initConfig() {
	viper.SetConfigName(".carlo")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetDefault("store", filepath.Join(home, ".carlo", "chats"))
	}
	viper.SetEnvPrefix("CARLO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// missing config file is fine, everything has defaults
	_ = viper.ReadInConfig()
}

func main() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "zerolog level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "directory holding the chat blobs")
	rootCmd.PersistentFlags().String("key", "", "blob key of the chat store")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("key", rootCmd.PersistentFlags().Lookup("key"))
	viper.SetDefault("key", "app-chats")
	viper.SetDefault("default-model", "gpt-4")

	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newTokensCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
