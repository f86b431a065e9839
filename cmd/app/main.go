package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/hearsay/internal"
	"github.com/starford/hearsay/internal/client"
	"github.com/starford/hearsay/internal/identity"
	"github.com/starford/hearsay/internal/mcpserver"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/remote"
	pkgconfig "github.com/starford/hearsay/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithConfigPath(cmd.String("config")),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol.
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	svc, db, err := internal.NewService(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return mcpserver.New(svc, version).ServeStdio()
}

// installation builds the local client. Logs go to stderr so command output
// stays machine readable.
func installation(cmd *cli.Command) (*client.Client, *identity.Manager, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)

	rc, err := remote.NewClient(cfg.Store.URL, cfg.Store.Token, nil)
	if err != nil {
		return nil, nil, err
	}
	rc.SetModeratorToken(cfg.Store.ModeratorToken)
	ks, err := identity.NewFileKeystore(cfg.Identity.Path)
	if err != nil {
		return nil, nil, err
	}
	ids := identity.NewManager(ks, logger)
	c := client.New(rc, ids,
		client.WithDifficulty(cfg.Pow.Difficulty),
		client.WithLogger(logger),
		client.WithProgress(func(attempts uint64) {
			fmt.Fprintf(os.Stderr, "\rmining... %d attempts", attempts)
		}),
	)
	return c, ids, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func identityShow(ctx context.Context, cmd *cli.Command) error {
	c, _, err := installation(cmd)
	if err != nil {
		return err
	}
	id, err := c.Identity()
	if err != nil {
		return err
	}
	out := map[string]any{
		"handle":     id.Handle,
		"public_key": id.PublicKeyHex(),
	}
	if rec, err := c.Reputation(ctx); err == nil {
		out["reputation"] = rec
	} else {
		slog.Warn("reputation unavailable", slog.String("error", err.Error()))
	}
	return printJSON(cmd.Root().Writer, out)
}

func identityReset(ctx context.Context, cmd *cli.Command) error {
	_, ids, err := installation(cmd)
	if err != nil {
		return err
	}
	if !cmd.Bool("yes") {
		return fmt.Errorf("reset discards your pseudonymous history; rerun with --yes")
	}
	if err := ids.Reset(); err != nil {
		return err
	}
	id, err := ids.GetOrCreate()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "new identity %s\n", id.Handle)
	return nil
}

func post(ctx context.Context, cmd *cli.Command) error {
	content := strings.Join(cmd.Args().Slice(), " ")
	c, _, err := installation(cmd)
	if err != nil {
		return err
	}
	var parent *string
	if p := cmd.String("parent"); p != "" {
		parent = &p
	}
	claim, err := c.Post(ctx, content, parent)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, claim)
}

func vote(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: vote <claim-id> <verify|dispute>")
	}
	c, _, err := installation(cmd)
	if err != nil {
		return err
	}
	v, err := c.Vote(ctx, cmd.Args().Get(0), models.VoteKind(cmd.Args().Get(1)))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, v)
}

func feed(ctx context.Context, cmd *cli.Command) error {
	c, _, err := installation(cmd)
	if err != nil {
		return err
	}
	q := remote.FeedQuery{
		Filter:   models.ParseFeedFilter(cmd.String("filter")),
		Sort:     models.ParseFeedSort(cmd.String("sort")),
		ParentID: cmd.String("parent"),
		Limit:    int(cmd.Int("limit")),
	}
	if cmd.Bool("mine") {
		id, err := c.Identity()
		if err != nil {
			return err
		}
		q.Author = id.PublicKeyHex()
	}
	claims := c.Feed(ctx, q)
	if cmd.Bool("json") {
		return printJSON(cmd.Root().Writer, claims)
	}

	tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRUST\tVOTES\tREPLIES\tAUTHOR\tCONTENT")
	for _, v := range claims {
		flag := ""
		if v.Anomaly {
			flag = " !"
		}
		fmt.Fprintf(tw, "%s\t%.0f%% %s%s\t+%d/-%d\t%d\t%s\t%s\n",
			v.ID, v.Trust.Percentage, v.Band, flag,
			v.Trust.VerifyCount, v.Trust.DisputeCount, v.ChildrenCount,
			v.AuthorHandle, preview(v.Content, 60))
	}
	return tw.Flush()
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func deleteClaim(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: delete <claim-id>")
	}
	c, _, err := installation(cmd)
	if err != nil {
		return err
	}
	return c.Delete(ctx, cmd.Args().First())
}

func resolve(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: resolve <vote-id> <correct|incorrect>")
	}
	var correct bool
	switch cmd.Args().Get(1) {
	case "correct":
		correct = true
	case "incorrect":
	default:
		return fmt.Errorf("outcome must be correct or incorrect")
	}
	c, _, err := installation(cmd)
	if err != nil {
		return err
	}
	rec, err := c.Resolve(ctx, cmd.Args().First(), correct)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, rec)
}

func main() {
	cmd := &cli.Command{
		Name:    "hearsay",
		Usage:   "Anonymous rumors with proof-of-work writes and reputation-weighted trust",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the shared record store",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve read-only MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:  "identity",
				Usage: "Manage the installation identity",
				Commands: []*cli.Command{
					{Name: "show", Usage: "Print handle, public key and reputation", Action: identityShow},
					{
						Name:   "reset",
						Usage:  "Discard the identity and generate a new one",
						Action: identityReset,
						Flags:  []cli.Flag{&cli.BoolFlag{Name: "yes", Usage: "Confirm the reset"}},
					},
				},
			},
			{
				Name:      "post",
				Usage:     "Publish a rumor",
				ArgsUsage: "<content>",
				Action:    post,
				Flags:     []cli.Flag{&cli.StringFlag{Name: "parent", Usage: "Reply to this claim id"}},
			},
			{
				Name:      "vote",
				Usage:     "Verify or dispute a rumor",
				ArgsUsage: "<claim-id> <verify|dispute>",
				Action:    vote,
			},
			{
				Name:   "feed",
				Usage:  "List rumors",
				Action: feed,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "filter", Value: "all", Usage: "all, verified or unverified"},
					&cli.StringFlag{Name: "sort", Value: "newest", Usage: "newest, oldest or hottest"},
					&cli.StringFlag{Name: "parent", Usage: "Only replies to this claim id"},
					&cli.BoolFlag{Name: "mine", Usage: "Only rumors posted by this identity"},
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "Show at most this many rumors (0 for all)"},
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
			},
			{
				Name:      "delete",
				Usage:     "Retract a rumor you posted",
				ArgsUsage: "<claim-id>",
				Action:    deleteClaim,
			},
			{
				Name:      "resolve",
				Usage:     "Record whether a vote turned out correct",
				ArgsUsage: "<vote-id> <correct|incorrect>",
				Action:    resolve,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
