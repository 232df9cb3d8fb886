package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/searchmap/observability"
	"github.com/tailored-agentic-units/searchmap/searchmap"
)

const recorderCapacity = 64

var errUsage = errors.New("usage")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("set"),
	readline.PcItem("get"),
	readline.PcItem("del"),
	readline.PcItem("search"),
	readline.PcItem("keys"),
	readline.PcItem("clear"),
	readline.PcItem("size"),
	readline.PcItem("stats"),
	readline.PcItem("events"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

const helpText = `set <key> <value>   store a value
get <key>           print a value
del <key>...        remove keys
search <query>      print entries whose key contains query
keys                print every key
clear               remove every entry
size                print the number of entries
stats               print engine statistics
events              print recent engine events
exit                leave`

func newReplCmd(opts *rootOptions) *cobra.Command {
	var history string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Drive a map from an interactive prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}

			events := observability.NewRecorder(recorderCapacity)
			attachRecorder(cfg, events)

			store, err := searchmap.New[string](cmd.Context(), *cfg)
			if err != nil {
				return fmt.Errorf("failed to create map: %w", err)
			}
			defer store.Destroy()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "◌ ",
				HistoryFile:     history,
				AutoComplete:    completer,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",

				HistorySearchFold:   true,
				FuncFilterInputRune: filterInput,
			})
			if err != nil {
				return err
			}
			defer rl.Close()
			rl.CaptureExitSignal()

			r := &repl{store: store, events: events, out: os.Stdout}
			return r.loop(cmd.Context(), rl)
		},
	}

	cmd.Flags().StringVar(&history, "history", "", "File to keep command history in")

	return cmd
}

// attachRecorder copies index and transport events to events while keeping
// the observers the config already names.
func attachRecorder(cfg *searchmap.Config, events *observability.Recorder) {
	attach := func(observer *string, name string) {
		configured := observability.Resolve(*observer, cfg.Logger)
		observability.Register(name, observability.NewMultiObserver(events, configured))
		*observer = name
	}
	attach(&cfg.Index.Observer, "repl.index")
	attach(&cfg.Transport.Observer, "repl.transport")
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

type repl struct {
	store  *searchmap.Map[string]
	events *observability.Recorder
	out    io.Writer
}

func (r *repl) loop(ctx context.Context, rl *readline.Instance) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) != 0 {
				continue
			}
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		done, err := r.execute(ctx, line)
		if err != nil {
			fmt.Fprintln(r.out, err)
		}
		if done {
			return nil
		}
	}
}

// execute runs one command line. It reports done when the session should end.
func (r *repl) execute(ctx context.Context, line string) (done bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		fmt.Fprintln(r.out, helpText)

	case "set":
		if len(args) < 2 {
			return false, fmt.Errorf("%w: set <key> <value>", errUsage)
		}
		err = r.store.Set(ctx, args[0], strings.Join(args[1:], " "))

	case "get":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: get <key>", errUsage)
		}
		if value, ok := r.store.Get(args[0]); ok {
			fmt.Fprintln(r.out, value)
		} else {
			fmt.Fprintln(r.out, "(not found)")
		}

	case "del":
		if len(args) == 0 {
			return false, fmt.Errorf("%w: del <key>...", errUsage)
		}
		var n int
		n, err = r.store.RemoveMultiple(ctx, args)
		if err == nil {
			fmt.Fprintf(r.out, "removed %d\n", n)
		}

	case "search":
		if len(args) == 0 {
			return false, fmt.Errorf("%w: search <query>", errUsage)
		}
		err = r.search(ctx, strings.Join(args, " "))

	case "keys":
		keys := slices.Sorted(r.store.Keys())
		for _, k := range keys {
			fmt.Fprintln(r.out, k)
		}

	case "clear":
		err = r.store.Clear(ctx)

	case "size":
		fmt.Fprintln(r.out, r.store.Size())

	case "stats":
		st := r.store.Stats()
		fmt.Fprintf(r.out, "size=%d cached=%d pending=%d stale=%d state=%s sent=%d received=%d queued=%d\n",
			st.Size, st.CacheSize, st.Index.Pending, st.Index.Stale, st.Index.State,
			st.Index.Transport.MessagesSent, st.Index.Transport.MessagesRecv, st.Index.Transport.MessagesQueue)

	case "events":
		for _, e := range r.events.Events() {
			fmt.Fprintf(r.out, "%s %-7s %s %v\n", e.Timestamp.Format("15:04:05.000"), e.Level, e.Type, e.Data)
		}

	case "exit", "quit":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try help)", cmd)
	}

	return false, err
}

func (r *repl) search(ctx context.Context, query string) error {
	keys, err := r.store.KeysFor(ctx, query)
	if err != nil {
		return err
	}
	slices.Sort(keys)
	for _, k := range keys {
		value, _ := r.store.Get(k)
		fmt.Fprintf(r.out, "%s\t%s\n", k, value)
	}
	if len(keys) == 0 {
		fmt.Fprintln(r.out, "(no matches)")
	}
	return nil
}
