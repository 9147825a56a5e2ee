package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hackboard/backend"
	"hackboard/board"
	"hackboard/config"
	"hackboard/domain"
)

type options struct {
	configPath string
	backendURL string
	token      string
	projectID  string
	by         string
	debug      bool
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	opts   *options
	out    io.Writer
	errOut io.Writer
	logger *log.Logger
	client *backend.Client
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	a := &app{opts: opts, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "boardctl",
		Short: "Inspect and rearrange hackathon project boards",
		Long: `boardctl reads a project's tasks from the backend, lays them out as a
status or member board and applies moves optimistically, rolling back when
the backend rejects an update.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&opts.backendURL, "backend", "", "Backend base URL (overrides BACKEND_URL)")
	flags.StringVar(&opts.token, "token", "", "Bearer token for the backend (overrides BACKEND_TOKEN)")
	flags.StringVarP(&opts.projectID, "project", "p", "", "Project id")
	flags.StringVar(&opts.by, "by", string(board.KindStatus), "Board layout: status or member")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newShowCmd(a),
		newMoveCmd(a),
		newCompleteCmd(a),
		newGenerateCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return err
	}
	if a.opts.backendURL != "" {
		cfg.Backend.URL = a.opts.backendURL
	}
	if a.opts.token != "" {
		cfg.Backend.Token = a.opts.token
	}
	if err := cfg.ValidateClient(); err != nil {
		return err
	}
	if a.opts.projectID == "" {
		return errors.New("missing project: use --project")
	}

	a.logger = log.New()
	a.logger.SetOutput(a.errOut)
	if a.opts.debug || cfg.Debug {
		a.logger.SetLevel(log.DebugLevel)
	} else {
		a.logger.SetLevel(log.WarnLevel)
	}
	a.client = backend.New(cfg.Backend.URL, cfg.Backend.Token)
	a.client.Logger = a.logger
	return nil
}

func (a *app) kind() (board.Kind, error) {
	switch board.Kind(a.opts.by) {
	case board.KindStatus, board.KindMember:
		return board.Kind(a.opts.by), nil
	}
	return "", fmt.Errorf("unknown board layout %q: use status or member", a.opts.by)
}

func (a *app) loadBoard(ctx context.Context) (*board.Board, error) {
	kind, err := a.kind()
	if err != nil {
		return nil, err
	}
	tasks, err := a.client.FetchTasks(ctx, a.opts.projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	if kind == board.KindStatus {
		return board.Build(tasks, board.StatusStrategy{}), nil
	}
	members, err := a.client.FetchMembers(ctx, a.opts.projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch members: %w", err)
	}
	return board.Build(tasks, board.NewMemberStrategy(members)), nil
}

// controller wraps b so moves go through the optimistic sync cycle.
func (a *app) controller(b *board.Board) *board.Controller {
	projectID := a.opts.projectID
	return board.NewController(b, board.UpdaterFunc(func(ctx context.Context, taskID string, patch domain.TaskPatch) error {
		return a.client.PatchTask(ctx, projectID, taskID, patch)
	}), board.Options{
		Logger:   a.logger,
		Notifier: stderrNotifier{w: a.errOut},
	})
}

type stderrNotifier struct {
	w io.Writer
}

func (n stderrNotifier) NotifyFailure(_ context.Context, message string) {
	fmt.Fprintln(n.w, "error:", message)
}

func printBoard(w io.Writer, b *board.Board) {
	for i, key := range b.Keys() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		tasks := b.Bucket(key)
		fmt.Fprintf(w, "%s (%d)\n", key, len(tasks))
		for _, t := range tasks {
			mark := "[ ]"
			if t.Completed {
				mark = "[x]"
			}
			id := t.ID
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(w, "  %s %-12s %s\n", mark, id, strings.TrimSpace(t.Title))
		}
	}
}
