package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/carlo/pkg/chats/persist"
)

func openPipeline() (*persist.Pipeline, error) {
	dir := viper.GetString("store")
	if dir == "" {
		return nil, errors.New("no store directory configured")
	}
	blobs, err := persist.NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	return persist.New(blobs, persist.WithKey(viper.GetString("key"))), nil
}

func newInspectCommand() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the conversations in a chat store, migrating old blobs in memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := openPipeline()
			if err != nil {
				return err
			}
			conversations, err := pipeline.Load()
			if err != nil {
				return errors.Wrap(err, "loading chat store")
			}

			if asYAML {
				return yaml.NewEncoder(os.Stdout).Encode(conversations)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPERSONA\tMESSAGES\tTOKENS\tUPDATED")
			for _, c := range conversations {
				title := c.Title()
				if title == "" {
					title = "(untitled)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					c.ID, title, c.SystemPurposeID, len(c.Messages), c.TokenCount,
					c.Updated.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "dump full conversations as YAML")

	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite the chat store at the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := openPipeline()
			if err != nil {
				return err
			}
			conversations, err := pipeline.Load()
			if err != nil {
				return errors.Wrap(err, "loading chat store")
			}
			if err := pipeline.Save(conversations); err != nil {
				return errors.Wrap(err, "saving chat store")
			}
			fmt.Printf("migrated %d conversations to version %d\n", len(conversations), persist.CurrentVersion)
			return nil
		},
	}
}
