package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hackboard/board"
	"hackboard/domain"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the board columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.loadBoard(cmd.Context())
			if err != nil {
				return err
			}
			printBoard(a.out, b)
			return nil
		},
	}
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <bucket>",
		Short: "Move a task into another column",
		Long: `Move a task into another column. On the status board the bucket is
TODO, DOING or DONE; on the member board it is a member id or "unassigned".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.loadBoard(cmd.Context())
			if err != nil {
				return err
			}
			taskID, bucket := args[0], args[1]
			if _, _, ok := b.Find(taskID); !ok {
				return fmt.Errorf("task %s: %w", taskID, domain.ErrTaskNotFound)
			}
			if !b.HasBucket(bucket) {
				return fmt.Errorf("unknown column %q", bucket)
			}
			res := a.controller(b).Move(cmd.Context(), taskID, bucket)
			return report(a, res, taskID)
		},
	}
}

func newCompleteCmd(a *app) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark a task as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.loadBoard(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.controller(b).SetCompleted(cmd.Context(), args[0], !undo)
			if err != nil {
				return fmt.Errorf("task %s: %w", args[0], err)
			}
			return report(a, res, args[0])
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Mark the task as not completed instead")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Ask the backend to generate the project's backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.TriggerGeneration(cmd.Context(), a.opts.projectID); err != nil {
				return fmt.Errorf("trigger generation: %w", err)
			}
			fmt.Fprintf(a.out, "generation triggered for %s\n", a.opts.projectID)
			return nil
		},
	}
}

// report prints the outcome of a cycle. A rolled back cycle is an error so
// the process exits non-zero.
func report(a *app, res board.CycleResult, taskID string) error {
	switch res.Outcome {
	case board.NoOp:
		fmt.Fprintf(a.out, "%s: nothing to do\n", taskID)
	case board.Confirmed:
		fmt.Fprintf(a.out, "%s: saved\n", taskID)
	case board.RolledBack:
		return fmt.Errorf("%s: rolled back: %w", taskID, res.Err)
	}
	return nil
}
