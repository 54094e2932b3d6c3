package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"blogfeed/models"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch and print the normalized posts once",
		Description: `Runs a single fetch and normalize cycle against the configured
upstream and prints the resulting posts as a JSON array to stdout.

Useful to check a configuration before deploying it. Falls back to the
placeholder post exactly like the server does.

Prints all log messages to stderr.`,
		Flags: feedFlags(),
		Action: func(ctx *cli.Context) error {
			// Keep stdout for the JSON output
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg, os.Stderr); err != nil {
				return err
			}

			svc := newService(cfg)
			result, err := svc.Posts(ctx.Context)
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"origin": result.Origin,
				"posts":  len(result.Posts),
			}).Info("Fetched posts")

			return printPosts(ctx.App.Writer, result.Posts)
		},
	}
}

// printPosts writes posts as indented JSON
func printPosts(out io.Writer, posts []models.Post) error {
	postsJson, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(postsJson))
	return err
}
