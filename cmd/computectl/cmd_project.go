package main

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vnetlab/compute/pkg/cli"
	"github.com/vnetlab/compute/pkg/registry"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage a project's registry",
	}
	cmd.AddCommand(newProjectCreateCmd(), newProjectStatusCmd())
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new project and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id := uuid.New()
			s, err := registry.Load(cfg.ProjectsRoot, id, name)
			if err != nil {
				return err
			}
			if err := registry.Save(cfg.ProjectsRoot, s); err != nil {
				return err
			}
			fmt.Println(id.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	return cmd
}

func newProjectStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List a project's nodes and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := requireProject()
			if err != nil {
				return err
			}
			s, err := registry.Load(cfg.ProjectsRoot, id, "")
			if err != nil {
				return err
			}

			names := make([]string, 0, len(s.Nodes))
			for name := range s.Nodes {
				names = append(names, name)
			}
			sort.Strings(names)

			t := cli.NewTable("NODE", "KIND", "STATUS", "CONSOLE")
			for _, name := range names {
				rec := s.Nodes[name]
				console := "-"
				if rec.Console != 0 {
					console = fmt.Sprintf("%s:%d", cfg.ConsoleHost, rec.Console)
				}
				t.Row(name, rec.Kind, statusLabel(rec.Status), console)
			}
			t.Flush()
			return nil
		},
	}
	return cmd
}

// statusLabel colors a node's status for terminal display: green for a
// running node, dim for a stopped one, left plain otherwise.
func statusLabel(status string) string {
	switch status {
	case "started":
		return cli.Green(status)
	case "stopped":
		return cli.Dim(status)
	default:
		return status
	}
}
