package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"chatdesk/internal/app"
	"chatdesk/pkg/auth"
	"chatdesk/pkg/config"
	"chatdesk/pkg/kv"
	"chatdesk/pkg/logger"
	"chatdesk/pkg/shutdown"
)

type ServeCmd struct{ flags *Flags }

func NewServeCmd(flags *Flags) *ServeCmd { return &ServeCmd{flags: flags} }

func (cmd *ServeCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the chat service",
		UsageText: "chatdesk serve [--addr host:port]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (host:port)",
				Destination: &cmd.flags.Addr,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	eff, err := cmd.flags.effective(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(eff, build())
	if err != nil {
		shutdown.Abort("failed to initialize app", err)
	}

	runCtx, cancel := shutdown.SetupSignalHandler(ctx)
	defer cancel()

	runErr := a.Run(runCtx)

	shutdownCtx, shutdownCancel := shutdown.WithWindow(eff.Config.Server.ShutdownWindow.Duration())
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

type TokenCmd struct {
	flags *Flags
	user  string
	name  string
	email string
	ttl   time.Duration
}

func NewTokenCmd(flags *Flags) *TokenCmd { return &TokenCmd{flags: flags} }

func (cmd *TokenCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:        "token",
		Usage:       "Mint a bearer token",
		UsageText:   "chatdesk token --user <id> [--name <name>] [--email <email>] [--ttl 24h]",
		Description: "Signs a token with the primary signing key. Use the admin_user_id as --user for an admin token.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "user id (token subject)", Required: true, Destination: &cmd.user},
			&cli.StringFlag{Name: "name", Usage: "display name", Destination: &cmd.name},
			&cli.StringFlag{Name: "email", Usage: "email, used as display name fallback", Destination: &cmd.email},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime (defaults to security.token_ttl)", Destination: &cmd.ttl},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *TokenCmd) run(ctx context.Context, c *cli.Command) error {
	if _, err := cmd.flags.effective(c); err != nil {
		return err
	}
	cfg := config.GetConfig()
	gw, err := auth.NewJWTGateway(cfg.Security.SigningKeys, cfg.Security.Issuer)
	if err != nil {
		return err
	}
	ttl := cmd.ttl
	if ttl <= 0 {
		ttl = cfg.Security.TokenTTL.Duration()
	}
	tok, exp, err := gw.Issue(auth.Identity{UserID: cmd.user, Name: cmd.name, Email: cmd.email}, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	out := c.Root().Writer
	_, _ = fmt.Fprintln(out, tok)
	_, _ = fmt.Fprintf(c.Root().ErrWriter, "expires %s (%s)\n", exp.Format(time.RFC3339), humanize.Time(exp))
	return nil
}

type ReconcileCmd struct{ flags *Flags }

func NewReconcileCmd(flags *Flags) *ReconcileCmd { return &ReconcileCmd{flags: flags} }

func (cmd *ReconcileCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:        "reconcile",
		Usage:       "Rebuild the conversation summary table once",
		UsageText:   "chatdesk reconcile",
		Description: "Scans the whole message log and rewrites every summary row. Run it with the server stopped when using pebble.",
		Action:      cmd.run,
	})
	return root
}

func (cmd *ReconcileCmd) run(ctx context.Context, c *cli.Command) error {
	eff, err := cmd.flags.effective(c)
	if err != nil {
		return err
	}
	a, err := app.New(eff, build())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	n, err := a.Reconciler().RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "rebuilt %s summaries\n", humanize.Comma(int64(n)))
	return nil
}

type InspectCmd struct {
	flags  *Flags
	prefix string
}

func NewInspectCmd(flags *Flags) *InspectCmd { return &InspectCmd{flags: flags} }

func (cmd *InspectCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "inspect",
		Usage:     "Print stored keys and values",
		UsageText: "chatdesk inspect [--prefix sum:]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prefix", Usage: "key prefix to scan", Value: "", Destination: &cmd.prefix},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *InspectCmd) run(ctx context.Context, c *cli.Command) error {
	eff, err := cmd.flags.effective(c)
	if err != nil {
		return err
	}
	a, err := app.New(eff, build())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	entries, err := a.Store().ScanPrefix(ctx, cmd.prefix)
	if err != nil {
		return fmt.Errorf("scan %q: %w", cmd.prefix, err)
	}
	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tVALUE")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Key, e.Value)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(c.Root().ErrWriter, "%s keys, %s\n", humanize.Comma(int64(len(entries))), humanize.IBytes(totalBytes(entries)))
	return nil
}

func totalBytes(entries []kv.Entry) uint64 {
	var n uint64
	for _, e := range entries {
		n += uint64(len(e.Key) + len(e.Value))
	}
	return n
}
