package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "blogfeed",
		Usage: "Serve the latest posts of a blog as normalized JSON",
		Description: `Fetches the latest posts of a blog from the Hashnode GraphQL API
		or from an RSS, Atom or JSON feed and serves them as a short, normalized
		JSON list for a portfolio or landing page.

		Upstream responses are cached in memory. When upstream fails the last
		good list is served, or a single placeholder post linking to the blog.

		Flags can generally be set via environment variables, e.g.:

		--host => BLOGFEED_HOST=myname.hashnode.dev
		--port => BLOGFEED_PORT=8080
		`,
		Commands: []*cli.Command{
			serveCmd(),
			fetchCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute runs the app with the process arguments and exits non-zero on error
func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
