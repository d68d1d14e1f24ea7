// ABOUTME: Agent-facing CLI for the fold-relay message bus
// ABOUTME: send/recv/peek/watch plus channel, note, and export commands

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/fold-relay/internal/config"
	"github.com/2389/fold-relay/internal/ident"
	"github.com/2389/fold-relay/internal/logging"
	"github.com/2389/fold-relay/internal/relay"
	"github.com/2389/fold-relay/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "send":
		err = cmdSend(ctx, args)
	case "recv":
		err = cmdRecv(ctx, args)
	case "peek":
		err = cmdPeek(ctx, args)
	case "watch":
		err = cmdWatch(ctx, args)
	case "channels":
		err = cmdChannels(ctx, args)
	case "note":
		err = cmdNote(ctx, args)
	case "export":
		err = cmdExport(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: fold-relay <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  send <channel> <message>     Send a message (--as <identity>)")
	fmt.Println("  recv <channel>               Receive unread messages (--as <identity>)")
	fmt.Println("  peek <channel>               Show all messages without marking read")
	fmt.Println("  watch <channel>              Poll for new messages until interrupted")
	fmt.Println("  channels <subcommand>        list|create|rename|archive|pin|unpin|delete")
	fmt.Println("  note <add|list>              Channel notes")
	fmt.Println("  export <channel>             Dump a channel snapshot as JSON")
	fmt.Println()
	fmt.Println("Identity comes from --as or FOLD_RELAY_AGENT.")
	fmt.Println("Config comes from FOLD_RELAY_CONFIG (YAML or TOML).")
}

// openService loads config, sets up logging, and wires the service. The
// returned cleanup closes the store.
func openService() (*relay.Service, *config.Config, func(), error) {
	var cfg *config.Config
	if path := os.Getenv("FOLD_RELAY_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ids := ident.New()
	st, err := store.NewSQLiteStore(cfg.Database.Path, ids)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	svc := relay.New(st, relay.NewAgentDirectory(st), relay.NewLogSink(logger), ids, logger)
	return svc, cfg, func() { st.Close() }, nil
}

// splitIdentity pulls --as out of the argument list, falling back to the
// FOLD_RELAY_AGENT environment variable.
func splitIdentity(args []string) (string, []string) {
	identity := os.Getenv("FOLD_RELAY_AGENT")
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--as" && i+1 < len(args) {
			identity = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return identity, rest
}

func cmdSend(ctx context.Context, args []string) error {
	identity, rest := splitIdentity(args)
	if len(rest) < 2 {
		return fmt.Errorf("usage: fold-relay send <channel> <message> [--as <identity>]")
	}

	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	agentID, err := svc.Send(ctx, rest[0], identity, strings.Join(rest[1:], " "))
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("sent to #%s", rest[0])
	fmt.Printf(" as %s (%s)\n", identity, agentID)
	return nil
}

func cmdRecv(ctx context.Context, args []string) error {
	identity, rest := splitIdentity(args)
	if len(rest) < 1 {
		return fmt.Errorf("usage: fold-relay recv <channel> [--as <identity>]")
	}

	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	agentID, err := resolveConsumer(ctx, svc, identity)
	if err != nil {
		return err
	}

	d, err := svc.Recv(ctx, rest[0], agentID)
	if err != nil {
		return err
	}

	if d.Count == 0 {
		color.New(color.FgHiBlack).Println("no new messages")
		return nil
	}
	printMessages(d.Messages)
	color.New(color.FgHiBlack).Printf("%d new from %d sender(s)\n", d.Count, len(d.Senders))
	return nil
}

func cmdPeek(ctx context.Context, args []string) error {
	identity, rest := splitIdentity(args)
	if len(rest) < 1 {
		return fmt.Errorf("usage: fold-relay peek <channel> [--as <identity>]")
	}

	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	agentID := ""
	if identity != "" {
		agentID, err = resolveConsumer(ctx, svc, identity)
		if err != nil {
			return err
		}
	}

	msgs, unread, err := svc.Peek(ctx, rest[0], agentID)
	if err != nil {
		return err
	}

	printMessages(msgs)
	if agentID != "" {
		color.New(color.FgHiBlack).Printf("%d message(s), %d unread\n", len(msgs), unread)
	} else {
		color.New(color.FgHiBlack).Printf("%d message(s)\n", len(msgs))
	}
	return nil
}

func cmdWatch(ctx context.Context, args []string) error {
	identity, rest := splitIdentity(args)
	if len(rest) < 1 {
		return fmt.Errorf("usage: fold-relay watch <channel> [--as <identity>]")
	}

	svc, cfg, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	agentID, err := resolveConsumer(ctx, svc, identity)
	if err != nil {
		return err
	}

	color.New(color.FgCyan).Printf("watching #%s as %s (every %s, ctrl-c to stop)\n",
		rest[0], identity, cfg.Poll.Interval)

	ticker := time.NewTicker(cfg.Poll.Interval)
	defer ticker.Stop()

	for {
		d, err := svc.Poll(ctx, rest[0], agentID)
		if err != nil {
			return err
		}
		printMessages(d.Messages)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// resolveConsumer turns an identity into an agent id for the read path.
func resolveConsumer(ctx context.Context, svc *relay.Service, identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("identity is required (use --as or FOLD_RELAY_AGENT)")
	}
	// Reading registers the identity the same way sending does, so the
	// bookmark belongs to a stable agent id.
	return svc.ResolveIdentity(ctx, identity)
}

func printMessages(msgs []*store.Message) {
	for _, m := range msgs {
		color.New(color.FgHiBlack).Printf("%s ", m.CreatedAt.Local().Format("15:04:05"))
		color.New(color.FgCyan).Printf("%s ", shortID(m.SenderID))
		fmt.Println(m.Content)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func cmdChannels(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	switch sub {
	case "list":
		identity, rest := splitIdentity(args)
		includeArchived := false
		for _, a := range rest {
			if a == "--all" {
				includeArchived = true
			}
		}
		agentID := ""
		if identity != "" {
			if agentID, err = resolveConsumer(ctx, svc, identity); err != nil {
				return err
			}
		}
		sums, err := svc.ListChannels(ctx, store.ListOptions{
			IncludeArchived: includeArchived,
			AgentID:         agentID,
		})
		if err != nil {
			return err
		}
		return printChannelTable(sums, agentID != "")

	case "create":
		if len(args) < 1 {
			return fmt.Errorf("usage: fold-relay channels create <name> [topic]")
		}
		topic := ""
		if len(args) > 1 {
			topic = strings.Join(args[1:], " ")
		}
		ch, err := svc.CreateChannel(ctx, args[0], topic)
		if err != nil {
			return err
		}
		fmt.Printf("created #%s (%s)\n", ch.Name, ch.ID)
		return nil

	case "rename":
		if len(args) < 2 {
			return fmt.Errorf("usage: fold-relay channels rename <old> <new>")
		}
		found, err := svc.RenameChannel(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if !found {
			fmt.Printf("no channel named %q\n", args[0])
			return nil
		}
		fmt.Printf("renamed #%s to #%s\n", args[0], args[1])
		return nil

	case "archive", "pin", "unpin", "delete":
		if len(args) < 1 {
			return fmt.Errorf("usage: fold-relay channels %s <name>", sub)
		}
		switch sub {
		case "archive":
			err = svc.ArchiveChannel(ctx, args[0])
		case "pin":
			err = svc.PinChannel(ctx, args[0])
		case "unpin":
			err = svc.UnpinChannel(ctx, args[0])
		case "delete":
			err = svc.DeleteChannel(ctx, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s #%s\n", pastTense(sub), args[0])
		return nil

	default:
		return fmt.Errorf("unknown channels subcommand: %s", sub)
	}
}

func pastTense(verb string) string {
	switch verb {
	case "pin", "unpin":
		return verb + "ned"
	default:
		return verb + "d"
	}
}

func printChannelTable(sums []*store.ChannelSummary, withUnread bool) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if withUnread {
		fmt.Fprintln(w, "CHANNEL\tMSGS\tUNREAD\tNOTES\tLAST ACTIVITY\tFLAGS")
	} else {
		fmt.Fprintln(w, "CHANNEL\tMSGS\tNOTES\tLAST ACTIVITY\tFLAGS")
	}
	for _, s := range sums {
		var flags []string
		if s.PinnedAt != nil {
			flags = append(flags, "pinned")
		}
		if s.Archived() {
			flags = append(flags, "archived")
		}
		last := "-"
		if s.LastActivity != nil {
			last = s.LastActivity.Local().Format("2006-01-02 15:04")
		}
		if withUnread {
			fmt.Fprintf(w, "#%s\t%d\t%d\t%d\t%s\t%s\n",
				s.Name, s.MessageCount, s.UnreadCount, s.NoteCount, last, strings.Join(flags, ","))
		} else {
			fmt.Fprintf(w, "#%s\t%d\t%d\t%s\t%s\n",
				s.Name, s.MessageCount, s.NoteCount, last, strings.Join(flags, ","))
		}
	}
	return w.Flush()
}

func cmdNote(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fold-relay note <add|list> <channel> [content]")
	}
	sub := args[0]
	args = args[1:]

	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	switch sub {
	case "add":
		identity, rest := splitIdentity(args)
		if len(rest) < 2 {
			return fmt.Errorf("usage: fold-relay note add <channel> <content> [--as <identity>]")
		}
		note, err := svc.AddNote(ctx, rest[0], identity, strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("noted on #%s (%s)\n", rest[0], note.ID)
		return nil

	case "list":
		if len(args) < 1 {
			return fmt.Errorf("usage: fold-relay note list <channel>")
		}
		notes, err := svc.Notes(ctx, args[0])
		if err != nil {
			return err
		}
		for _, n := range notes {
			color.New(color.FgHiBlack).Printf("%s ", n.CreatedAt.Local().Format("2006-01-02 15:04"))
			fmt.Println(n.Content)
		}
		return nil

	default:
		return fmt.Errorf("unknown note subcommand: %s", sub)
	}
}

func cmdExport(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fold-relay export <channel>")
	}

	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	snapshot, err := svc.Export(ctx, args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("channel %q not found", args[0])
		}
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}
