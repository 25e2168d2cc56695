package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flywheel/internal/todo"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Priority int
	Due      string
	Tags     []string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add TEXT...",
		Short: "Add a todo",
		Long: `Add a todo. All arguments are joined into the text.

Examples:
  flywheel add buy milk
  flywheel add "file taxes" --priority 1 --due 2024-04-15 --tag home`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, cmd, args)
		},
	}

	cmd.Flags().IntVarP(&opts.Priority, "priority", "p", todo.PriorityNone, "priority 1 (high) to 3 (low), 0 for none")
	cmd.Flags().StringVar(&opts.Due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "tag (repeatable)")

	return cmd
}

func runAdd(opts *AddOptions, cmd *cobra.Command, args []string) error {
	now := opts.now()
	t, err := todo.New(strings.Join(args, " "), now)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid todo", err)
	}
	if err := applyFields(&t, now, opts.Priority, opts.Due, opts.Tags); err != nil {
		return WrapExitError(ExitFailure, "invalid todo", err)
	}

	sess, err := opts.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	added, err := sess.store.Add(cmd.Context(), t)
	if err != nil {
		return storeError("failed to add todo", err)
	}

	f := opts.formatter(cmd.OutOrStdout())
	if opts.Format == "json" {
		return f.Success(added)
	}
	return f.Success(fmt.Sprintf("Added %d: %s", added.ID, added.Text))
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Done    bool
	Pending bool
	Overdue bool
	Tag     string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List todos",
		Args:    noArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Done, "done", false, "only completed todos")
	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "only open todos")
	cmd.Flags().BoolVar(&opts.Overdue, "overdue", false, "only overdue todos")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "only todos with this tag")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	if opts.Done && opts.Pending {
		return NewExitError(ExitCommandError, "--done and --pending are mutually exclusive")
	}

	sess, err := opts.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	todos, err := sess.store.Load(cmd.Context())
	if err != nil {
		return storeError("failed to load todos", err)
	}

	now := opts.now()
	shown := []todo.Todo{}
	for _, t := range todos {
		switch {
		case opts.Done && !t.Done,
			opts.Pending && t.Done,
			opts.Overdue && !t.IsOverdue(now),
			opts.Tag != "" && !t.HasTag(opts.Tag):
			continue
		}
		shown = append(shown, t)
	}

	f := opts.formatter(cmd.OutOrStdout())
	if opts.Format == "json" {
		return f.Success(shown)
	}
	if len(shown) == 0 {
		return f.Success("No todos.")
	}
	lines := make([]string, len(shown))
	for i, t := range shown {
		lines[i] = formatTodo(t, now)
	}
	return f.Success(strings.Join(lines, "\n"))
}

// NewDoneCommand creates the done command.
func NewDoneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "done ID",
		Short: "Mark a todo as completed",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModify(rootOpts, cmd, args[0], "Completed", func(t *todo.Todo, now time.Time) error {
				t.MarkDone(now)
				return nil
			})
		},
	}
}

// NewUndoneCommand creates the undone command.
func NewUndoneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "undone ID",
		Short: "Reopen a completed todo",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModify(rootOpts, cmd, args[0], "Reopened", func(t *todo.Todo, now time.Time) error {
				t.MarkUndone(now)
				return nil
			})
		},
	}
}

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Text     string
	Priority int
	Due      string
	Tags     []string
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a todo's fields",
		Long: `Change a todo's fields. Only the flags given are applied.

Examples:
  flywheel edit 3 --text "buy oat milk"
  flywheel edit 3 --due ""          # clear the due date
  flywheel edit 3 --tag home,urgent # replace the tags`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("text") && !flags.Changed("priority") && !flags.Changed("due") && !flags.Changed("tag") {
				return NewExitError(ExitCommandError, "nothing to edit: give --text, --priority, --due or --tag")
			}
			return runModify(rootOpts, cmd, args[0], "Updated", func(t *todo.Todo, now time.Time) error {
				if flags.Changed("text") {
					if err := t.Rename(opts.Text, now); err != nil {
						return err
					}
				}
				if flags.Changed("priority") {
					if err := t.SetPriority(opts.Priority, now); err != nil {
						return err
					}
				}
				if flags.Changed("due") {
					if err := t.SetDueDate(opts.Due, now); err != nil {
						return err
					}
				}
				if flags.Changed("tag") {
					if err := t.SetTags(opts.Tags, now); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Text, "text", "", "new text")
	cmd.Flags().IntVarP(&opts.Priority, "priority", "p", todo.PriorityNone, "priority 1 (high) to 3 (low), 0 for none")
	cmd.Flags().StringVar(&opts.Due, "due", "", "due date (YYYY-MM-DD), empty to clear")
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "tags, replacing the current ones")

	return cmd
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Delete a todo",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			sess, err := rootOpts.openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			removed, err := sess.store.Remove(cmd.Context(), id)
			if err != nil {
				return storeError("failed to remove todo", err)
			}

			f := rootOpts.formatter(cmd.OutOrStdout())
			if rootOpts.Format == "json" {
				return f.Success(removed)
			}
			return f.Success(fmt.Sprintf("Removed %d: %s", removed.ID, removed.Text))
		},
	}
}

// runModify applies fn to the todo named by rawID and reports the result.
func runModify(opts *RootOptions, cmd *cobra.Command, rawID, verb string, fn func(t *todo.Todo, now time.Time) error) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}

	sess, err := opts.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	now := opts.now()
	modified, err := sess.store.Modify(cmd.Context(), id, func(t *todo.Todo) error {
		return fn(t, now)
	})
	if err != nil {
		return storeError("failed to update todo", err)
	}

	f := opts.formatter(cmd.OutOrStdout())
	if opts.Format == "json" {
		return f.Success(modified)
	}
	return f.Success(fmt.Sprintf("%s %d: %s", verb, modified.ID, modified.Text))
}

// applyFields sets the optional fields shared by add and edit.
func applyFields(t *todo.Todo, now time.Time, priority int, due string, tags []string) error {
	if err := t.SetPriority(priority, now); err != nil {
		return err
	}
	if err := t.SetDueDate(due, now); err != nil {
		return err
	}
	if len(tags) > 0 {
		if err := t.SetTags(tags, now); err != nil {
			return err
		}
	}
	return nil
}

// formatTodo renders one todo as a list line.
func formatTodo(t todo.Todo, now time.Time) string {
	mark := " "
	if t.Done {
		mark = "x"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%3d [%s] %s", t.ID, mark, t.Text)
	if t.Priority != todo.PriorityNone {
		fmt.Fprintf(&b, " (p%d)", t.Priority)
	}
	if t.DueDate != "" {
		fmt.Fprintf(&b, " due %s", t.DueDate)
		if t.IsOverdue(now) {
			b.WriteString(" OVERDUE")
		}
	}
	for _, tag := range t.Tags {
		fmt.Fprintf(&b, " #%s", tag)
	}
	return b.String()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q: must be a positive integer", s))
	}
	return id, nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return usageArgs(cobra.ExactArgs(n))
}

func minArgs(n int) cobra.PositionalArgs {
	return usageArgs(cobra.MinimumNArgs(n))
}

func noArgs() cobra.PositionalArgs {
	return usageArgs(cobra.NoArgs)
}

// usageArgs gives argument-count errors the command-error exit code.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}
