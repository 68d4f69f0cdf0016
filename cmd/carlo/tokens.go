package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/carlo/pkg/chats"
	"github.com/go-go-golems/carlo/pkg/models"
	"github.com/go-go-golems/carlo/pkg/tokens"
)

func newTokensCommand() *cobra.Command {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Commands related to tokens",
	}

	var model string
	var file string

	countCmd := &cobra.Command{
		Use:   "count [text...]",
		Short: "Count tokens of a piece of text under a given model",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return errors.Wrapf(err, "reading %s", file)
				}
				text = string(b)
			}
			if text == "" {
				return errors.New("no input text")
			}

			estimator := tokens.NewTiktokenEstimator()
			count, err := estimator.Estimate(
				[]*chats.Fragment{chats.NewTextFragment(text)},
				models.Descriptor{ID: model},
				"cli-count",
			)
			if err != nil {
				return err
			}

			fmt.Printf("Model: %s\n", model)
			fmt.Printf("Total tokens: %d\n", count)
			return nil
		},
	}

	countCmd.Flags().StringVar(&model, "model", viper.GetString("default-model"), "model used for encoding")
	countCmd.Flags().StringVar(&file, "file", "", "read input from a file instead of arguments")

	tokensCmd.AddCommand(countCmd)
	return tokensCmd
}
