package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/loykin/procwatch/pkg/client"
)

func createStatusCommand(g *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newAPIClient(g)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("daemon not reachable: %w", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(w io.Writer, st client.Status) error {
	_, err := fmt.Fprintf(w, "State:    %s\nMessage:  %s\nPrograms: %d\nCycles:   %d\nLaunches: %d (failures %d)\n",
		st.State, st.Message, st.Programs, st.Cycles, st.Launches, st.Failures)
	if err != nil {
		return err
	}
	if !st.LastCycleAt.IsZero() {
		_, err = fmt.Fprintf(w, "Last cycle: %s\n", st.LastCycleAt.Local().Format(time.RFC3339))
	}
	return err
}

func createHistoryCommand(g *GlobalFlags) *cobra.Command {
	f := &HistoryFlags{}
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent launches and failures recorded by a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newAPIClient(g)
			if err != nil {
				return err
			}
			events, err := c.History(cmd.Context(), f.Limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), events)
			}
			renderEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func renderEvents(w io.Writer, events []client.Event) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(w, "No events recorded")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Time", "Event", "Name", "Detail")
	for _, e := range events {
		detail := e.Error
		if e.Type == "cycle_completed" {
			detail = strconv.Itoa(e.Launched) + " started"
		}
		table.Append(e.OccurredAt.Local().Format(time.DateTime), e.Type, e.Name, detail)
	}
	table.Render()
}

func renderStates(w io.Writer, states []ProgramState) {
	if len(states) == 0 {
		_, _ = fmt.Fprintln(w, "No programs registered")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Nr", "Name", "Enabled", "Running")
	for _, s := range states {
		table.Append(strconv.Itoa(s.Nr), s.Name, yesNo(s.Enabled), yesNo(s.Running))
	}
	table.Render()
}

func createWatchdogCommand(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Start or stop supervision in a running daemon",
	}
	start := &cobra.Command{
		Use:   "start",
		Short: "Start supervising",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newAPIClient(g)
			if err != nil {
				return err
			}
			if err := c.StartWatchdog(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Watchdog started")
			return err
		},
	}
	f := &StopFlags{}
	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop supervising; launched programs keep running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newAPIClient(g)
			if err != nil {
				return err
			}
			if err := c.StopWatchdog(cmd.Context(), f.Timeout); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Watchdog stopped")
			return err
		},
	}
	stop.Flags().DurationVar(&f.Timeout, "timeout", 0, "how long to wait for the loop to exit (default: server default)")
	cmd.AddCommand(start, stop)
	return cmd
}
