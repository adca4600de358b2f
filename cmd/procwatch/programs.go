package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/probe"
	"github.com/loykin/procwatch/internal/registry"
	"github.com/loykin/procwatch/pkg/client"
)

// Program edits go through the daemon when --api-url is given; otherwise the
// file is edited directly and a running daemon picks the change up on reload.

func createListCommand(g *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitored programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			programs, err := listPrograms(cmd.Context(), g)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), programs)
			}
			renderPrograms(cmd.OutOrStdout(), programs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func listPrograms(ctx context.Context, g *GlobalFlags) ([]client.Program, error) {
	if g.APIUrl != "" {
		c, err := newAPIClient(g)
		if err != nil {
			return nil, err
		}
		return c.Programs(ctx)
	}
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	return programsFromRegistry(cfg.RegistryPrograms(nil)), nil
}

func createAddCommand(g *GlobalFlags) *cobra.Command {
	f := &ProgramFlags{}
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a program to the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Path = args[0]
			p, err := cmdAdd(cmd.Context(), g, *f)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", p.Name, p.Path)
			return err
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name to look for (default: file name of the path)")
	cmd.Flags().BoolVar(&f.Disabled, "disabled", false, "add the program disabled")
	return cmd
}

func cmdAdd(ctx context.Context, g *GlobalFlags, f ProgramFlags) (client.Program, error) {
	enabled := !f.Disabled
	if g.APIUrl != "" {
		c, err := newAPIClient(g)
		if err != nil {
			return client.Program{}, err
		}
		return c.AddProgram(ctx, client.ProgramRequest{Name: f.Name, Path: f.Path, Enabled: &enabled})
	}
	p, err := registry.New(f.Name, f.Path, enabled)
	if err != nil {
		return client.Program{}, err
	}
	err = editPrograms(g.ConfigPath, func(reg *registry.Registry) error { return reg.Add(p) })
	return client.Program{Name: p.Name, Path: p.Path, Enabled: p.Enabled}, err
}

func createRemoveCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a program from the list",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmdRemove(cmd.Context(), g, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return err
		},
	}
}

func cmdRemove(ctx context.Context, g *GlobalFlags, name string) error {
	if g.APIUrl != "" {
		c, err := newAPIClient(g)
		if err != nil {
			return err
		}
		return c.RemoveProgram(ctx, name)
	}
	return editPrograms(g.ConfigPath, func(reg *registry.Registry) error { return reg.Remove(name) })
}

func createEnableCommand(g *GlobalFlags, enable bool) *cobra.Command {
	use, short := "enable <name>", "Enable supervision of a program"
	if !enable {
		use, short = "disable <name>", "Disable supervision of a program"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmdSetEnabled(cmd.Context(), g, args[0], enable); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%v\n", args[0], enable)
			return err
		},
	}
}

func cmdSetEnabled(ctx context.Context, g *GlobalFlags, name string, enable bool) error {
	if g.APIUrl != "" {
		c, err := newAPIClient(g)
		if err != nil {
			return err
		}
		_, err = c.UpdateProgram(ctx, name, client.ProgramRequest{Enabled: &enable})
		return err
	}
	return editPrograms(g.ConfigPath, func(reg *registry.Registry) error { return reg.SetEnabled(name, enable) })
}

func createEditCommand(g *GlobalFlags) *cobra.Command {
	f := &ProgramFlags{}
	cmd := &cobra.Command{
		Use:   "edit <name>",
		Short: "Change the name or path of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Name == "" && f.Path == "" {
				return fmt.Errorf("nothing to change: use --name and/or --path")
			}
			if err := cmdEdit(cmd.Context(), g, args[0], *f); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "new process name")
	cmd.Flags().StringVar(&f.Path, "path", "", "new executable path")
	return cmd
}

func cmdEdit(ctx context.Context, g *GlobalFlags, name string, f ProgramFlags) error {
	if g.APIUrl != "" {
		c, err := newAPIClient(g)
		if err != nil {
			return err
		}
		_, err = c.UpdateProgram(ctx, name, client.ProgramRequest{Name: f.Name, Path: f.Path})
		return err
	}
	return editPrograms(g.ConfigPath, func(reg *registry.Registry) error {
		cur, err := reg.Get(name)
		if err != nil {
			return err
		}
		next := cur.WithPath(f.Path)
		if f.Name != "" {
			next.Name = f.Name
		}
		return reg.Update(cur.Name, next)
	})
}

// editPrograms applies fn to the program list stored in path and saves it.
func editPrograms(path string, fn func(*registry.Registry) error) error {
	_, err := config.Update(path, func(cfg *config.Config) error {
		reg := registry.NewRegistry(cfg.RegistryPrograms(nil)...)
		if err := fn(reg); err != nil {
			return err
		}
		cfg.SetPrograms(reg.Snapshot())
		return nil
	})
	return err
}

func createSettingsCommand(g *GlobalFlags) *cobra.Command {
	f := &SettingsFlags{}
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the check cycle and start delay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmdSettings(cmd, g.ConfigPath, *f)
		},
	}
	cmd.Flags().IntVar(&f.CheckCycleSec, "check-cycle", 0, "seconds between check cycles (minimum 1)")
	cmd.Flags().IntVar(&f.StartDelaySec, "start-delay", 0, "seconds to wait after starting a program")
	cmd.Flags().StringVar(&f.Background, "background", "", "launch programs without a console window (true|false)")
	return cmd
}

func cmdSettings(cmd *cobra.Command, path string, f SettingsFlags) error {
	flags := cmd.Flags()
	var (
		cfg *config.Config
		err error
	)
	if flags.Changed("check-cycle") || flags.Changed("start-delay") || flags.Changed("background") {
		cfg, err = config.Update(path, func(c *config.Config) error {
			if flags.Changed("check-cycle") {
				c.Settings.CheckCycleSec = f.CheckCycleSec
			}
			if flags.Changed("start-delay") {
				c.Settings.StartDelaySec = f.StartDelaySec
			}
			if flags.Changed("background") {
				switch f.Background {
				case "true":
					c.Settings.Background = true
				case "false":
					c.Settings.Background = false
				default:
					return fmt.Errorf("--background must be true or false, got %q", f.Background)
				}
			}
			return nil
		})
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return err
	}
	return printSettings(cmd.OutOrStdout(), cfg.Settings)
}

func printSettings(w io.Writer, s config.Settings) error {
	_, err := fmt.Fprintf(w, "check_cycle_sec = %d\nstart_delay_sec = %d\nbackground = %v\nautostart = %v\n",
		s.CheckCycleSec, s.StartDelaySec, s.Background, s.Autostart)
	return err
}

// ProgramState is one row of the check command.
type ProgramState struct {
	client.Program
	Running bool `json:"running"`
}

func createCheckCommand(g *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report which listed programs are running, without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			programs, err := listPrograms(cmd.Context(), g)
			if err != nil {
				return err
			}
			states := checkPrograms(probe.NewNameProbe(nil), programs)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), states)
			}
			renderStates(cmd.OutOrStdout(), states)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func checkPrograms(p probe.Probe, programs []client.Program) []ProgramState {
	out := make([]ProgramState, 0, len(programs))
	for _, prog := range programs {
		out = append(out, ProgramState{Program: prog, Running: p.IsRunning(prog.Name)})
	}
	return out
}
