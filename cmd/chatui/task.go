package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/scheduler"
	"github.com/iyou00/chatui/internal/store"
	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Analysis task management commands",
	}

	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskEnableCmd(true))
	cmd.AddCommand(newTaskEnableCmd(false))
	return cmd
}

// taskAddFlags mirrors the flags of `task add` before they are resolved
// into store.CreateTaskOpts.
type taskAddFlags struct {
	name       string
	rooms      []string
	cron       string
	runAt      string
	rangeKind  string
	days       int
	start      string
	end        string
	model      string
	prompt     string
	templateID uint
	disabled   bool
}

func newTaskAddCmd() *cobra.Command {
	var (
		configPath string
		f          taskAddFlags
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new analysis task",
		Long: `Creates a task that analyzes one or more rooms. Pass --cron for a recurring
task or --run-at for a one-shot task. Rooms may carry a slack: or discord:
prefix; unprefixed rooms are read from the chatlog service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.createOpts(time.Local)
			if err != nil {
				return err
			}
			return runTaskAdd(cmd, configPath, opts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to chatui config file")
	cmd.Flags().StringVar(&f.name, "name", "", "task name (required)")
	cmd.Flags().StringSliceVar(&f.rooms, "room", nil, "room to analyze (repeatable, required)")
	cmd.Flags().StringVar(&f.cron, "cron", "", "cron expression for a recurring task")
	cmd.Flags().StringVar(&f.runAt, "run-at", "", "instant for a one-shot task (2006-01-02 15:04 or RFC 3339)")
	cmd.Flags().StringVar(&f.rangeKind, "range", models.RangeRecent, "time range kind (recent, custom, all)")
	cmd.Flags().IntVar(&f.days, "days", 7, "days covered by a recent range")
	cmd.Flags().StringVar(&f.start, "start", "", "custom range start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "custom range end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.model, "model", "", "model ID (defaults to llm.default_model)")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "inline system prompt")
	cmd.Flags().UintVar(&f.templateID, "template", 0, "saved prompt template ID")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "create the task disabled")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("room")
	return cmd
}

// createOpts validates the schedule flags and builds CreateTaskOpts.
// Wall-clock --run-at values are read in loc.
func (f taskAddFlags) createOpts(loc *time.Location) (store.CreateTaskOpts, error) {
	opts := store.CreateTaskOpts{
		Name:       f.name,
		Rooms:      f.rooms,
		RangeKind:  f.rangeKind,
		RangeDays:  f.days,
		RangeStart: f.start,
		RangeEnd:   f.end,
		Model:      f.model,
		PromptText: f.prompt,
		Disabled:   f.disabled,
	}
	if f.templateID != 0 {
		id := f.templateID
		opts.PromptTemplateID = &id
	}

	switch {
	case f.cron != "" && f.runAt != "":
		return opts, fmt.Errorf("--cron and --run-at are mutually exclusive")
	case f.cron != "":
		if err := scheduler.ValidateCron(f.cron); err != nil {
			return opts, err
		}
		opts.ScheduleKind = models.ScheduleRecurring
		opts.Cron = f.cron
	case f.runAt != "":
		at, err := parseRunAt(f.runAt, loc)
		if err != nil {
			return opts, err
		}
		opts.ScheduleKind = models.ScheduleOnce
		opts.RunAt = &at
	default:
		return opts, fmt.Errorf("one of --cron or --run-at is required")
	}
	return opts, nil
}

func parseRunAt(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --run-at %q: want 2006-01-02 15:04 or RFC 3339", s)
}

func runTaskAdd(cmd *cobra.Command, configPath string, opts store.CreateTaskOpts) error {
	_, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	task, err := st.CreateTask(context.Background(), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created task %s\n", task.ID)
	fmt.Fprintf(out, "Rooms: %s\n", strings.Join(task.RoomList(), ", "))
	fmt.Fprintf(out, "Schedule: %s\n", describeSchedule(task))
	if !task.Enabled {
		fmt.Fprintln(out, "Task is disabled.")
	}
	return nil
}

func newTaskListCmd() *cobra.Command {
	var (
		configPath  string
		enabledOnly bool
		progress    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long:  "Lists tasks with optional filters. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := store.TaskFilters{Progress: progress}
			if enabledOnly {
				t := true
				filters.Enabled = &t
			}
			return runTaskList(cmd, configPath, filters)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to chatui config file")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only show enabled tasks")
	cmd.Flags().StringVar(&progress, "progress", "", "filter by progress (not_started, analyzing, completed, failed)")
	return cmd
}

func runTaskList(cmd *cobra.Command, configPath string, filters store.TaskFilters) error {
	_, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	tasks, err := st.ListTasks(context.Background(), filters)
	if err != nil {
		return err
	}
	writeTaskTable(cmd, tasks)
	return nil
}

func writeTaskTable(cmd *cobra.Command, tasks []models.Task) {
	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROOMS\tSCHEDULE\tENABLED\tPROGRESS\tLAST RUN")
	for i := range tasks {
		t := &tasks[i]
		lastRun := "-"
		if t.LastRunAt != nil {
			lastRun = fmt.Sprintf("%s %s", t.LastRunStatus, t.LastRunAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%s\t%s\n",
			t.ID, truncate(t.Name, 30), len(t.RoomList()), describeSchedule(t), t.Enabled, t.Progress, lastRun)
	}
	w.Flush()
}

func describeSchedule(t *models.Task) string {
	if t.ScheduleKind == models.ScheduleOnce {
		if t.RunAt == nil {
			return "once"
		}
		return "once " + t.RunAt.Format("2006-01-02 15:04")
	}
	return "cron " + t.Cron
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func newTaskEnableCmd(enable bool) *cobra.Command {
	var configPath string

	use, short := "enable <task-id>", "Enable a task"
	if !enable {
		use, short = "disable <task-id>", "Disable a task"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  "Enabled tasks are registered with the scheduler the next time `chatui serve` starts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskEnable(cmd, configPath, args[0], enable)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to chatui config file")
	return cmd
}

func runTaskEnable(cmd *cobra.Command, configPath, id string, enable bool) error {
	_, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := st.SetEnabled(context.Background(), id, enable); err != nil {
		return err
	}
	verb := "Enabled"
	if !enable {
		verb = "Disabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s task %s\n", verb, id)
	return nil
}
