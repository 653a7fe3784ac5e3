package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnetlab/compute/pkg/config"
	"github.com/vnetlab/compute/pkg/registry"
)

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Create, start, stop, suspend, or delete a node",
	}
	cmd.AddCommand(
		newNodeCreateCmd(),
		newNodeLifecycleCmd("start", "Start a node", registry.StartNode),
		newNodeLifecycleCmd("stop", "Stop a node", registry.StopNode),
		newNodeLifecycleCmd("suspend", "Suspend a node", registry.SuspendNode),
		newNodeLifecycleCmd("delete", "Delete a node", registry.DeleteNode),
	)
	return cmd
}

func newNodeCreateCmd() *cobra.Command {
	var (
		name         string
		kind         string
		executable   string
		macID        int
		hostIfc      string
		image        string
		startCommand string
		vnc          bool
		adapters     int
		dockerSocket string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a node (spec §4.H Create)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			projectID, err := requireProject()
			if err != nil {
				return err
			}
			s, err := registry.Load(cfg.ProjectsRoot, projectID, "")
			if err != nil {
				return err
			}

			params := map[string]string{}
			switch kind {
			case registry.KindUserPC:
				params["executable"] = executable
				params["mac_id"] = fmt.Sprintf("%d", macID)
			case registry.KindNAT:
				params["host_interface"] = hostIfc
			case registry.KindContainer:
				params["image"] = image
				params["start_command"] = startCommand
				params["adapters"] = fmt.Sprintf("%d", adapters)
				params["docker_socket"] = dockerSocket
				if vnc {
					params["vnc"] = "true"
				}
			case registry.KindL2Switch, registry.KindCloud:
				// no kind-specific creation parameters
			default:
				return fmt.Errorf("computectl: unknown --kind %q", kind)
			}

			rec, err := registry.CreateNode(cmd.Context(), cfg, s, name, kind, params)
			if err != nil {
				return err
			}
			if err := registry.Save(cfg.ProjectsRoot, s); err != nil {
				return err
			}
			fmt.Printf("created %s (%s), console %d\n", rec.Name, rec.Kind, rec.Console)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "node name (required)")
	cmd.Flags().StringVar(&kind, "kind", "", "backend kind: userpc, l2switch, cloud, nat, container (required)")
	cmd.Flags().StringVar(&executable, "executable", "", "userpc: subprocess executable path")
	cmd.Flags().IntVar(&macID, "mac-id", 0, "userpc: MAC id")
	cmd.Flags().StringVar(&hostIfc, "host-interface", "", "nat: bound host interface")
	cmd.Flags().StringVar(&image, "image", "", "container: image reference")
	cmd.Flags().StringVar(&startCommand, "start-command", "", "container: shell-split start command")
	cmd.Flags().BoolVar(&vnc, "vnc", false, "container: allocate a VNC console")
	cmd.Flags().IntVar(&adapters, "adapters", 1, "container: adapter count")
	cmd.Flags().StringVar(&dockerSocket, "docker-socket", "", "container: engine socket path (defaults to /var/run/docker.sock)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("kind")
	return cmd
}

func newNodeLifecycleCmd(use, short string, fn func(cfg config.Config, s *registry.State, name string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <node>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			projectID, err := requireProject()
			if err != nil {
				return err
			}
			s, err := registry.Load(cfg.ProjectsRoot, projectID, "")
			if err != nil {
				return err
			}
			if err := fn(cfg, s, args[0]); err != nil {
				return err
			}
			if err := registry.Save(cfg.ProjectsRoot, s); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", args[0], use)
			return nil
		},
	}
}
