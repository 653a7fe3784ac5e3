package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnetlab/compute/pkg/registry"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Wire or remove a node's NIO link (spec §4.H Linking)",
	}
	cmd.AddCommand(newLinkAddCmd(), newLinkRemoveCmd())
	return cmd
}

func newLinkAddCmd() *cobra.Command {
	var (
		adapter, port int
		nioKind       string
		lport, rport  int
		rhost         string
		iface         string
		portType      string
		vlan          int
	)

	cmd := &cobra.Command{
		Use:   "add <node>",
		Short: "Add (or replace) a link endpoint",
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

			spec := registry.LinkSpec{
				Adapter:  adapter,
				Port:     port,
				NIOKind:  nioKind,
				LPort:    lport,
				RHost:    rhost,
				RPort:    rport,
				Iface:    iface,
				PortType: portType,
				VLAN:     vlan,
			}
			if err := registry.AddLink(cfg, s, args[0], spec); err != nil {
				return err
			}
			if err := registry.Save(cfg.ProjectsRoot, s); err != nil {
				return err
			}
			fmt.Printf("%s: wired adapter %d port %d\n", args[0], adapter, port)
			return nil
		},
	}

	cmd.Flags().IntVar(&adapter, "adapter", 0, "adapter index")
	cmd.Flags().IntVar(&port, "port", 0, "port index (l2switch/cloud)")
	cmd.Flags().StringVar(&nioKind, "nio", "nio_udp", "nio_udp, nio_ethernet, nio_tap, nio_vmnet")
	cmd.Flags().IntVar(&lport, "lport", 0, "nio_udp: local port")
	cmd.Flags().StringVar(&rhost, "rhost", "", "nio_udp: remote host")
	cmd.Flags().IntVar(&rport, "rport", 0, "nio_udp: remote port")
	cmd.Flags().StringVar(&iface, "iface", "", "nio_ethernet/nio_tap/nio_vmnet: interface name")
	cmd.Flags().StringVar(&portType, "port-type", "access", "l2switch: access, dot1q, qinq")
	cmd.Flags().IntVar(&vlan, "vlan", 1, "l2switch: VLAN id")
	return cmd
}

func newLinkRemoveCmd() *cobra.Command {
	var adapter, port int
	cmd := &cobra.Command{
		Use:   "remove <node>",
		Short: "Remove a link endpoint",
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
			if err := registry.RemoveLink(cfg, s, args[0], adapter, port); err != nil {
				return err
			}
			if err := registry.Save(cfg.ProjectsRoot, s); err != nil {
				return err
			}
			fmt.Printf("%s: removed adapter %d port %d\n", args[0], adapter, port)
			return nil
		},
	}
	cmd.Flags().IntVar(&adapter, "adapter", 0, "adapter index")
	cmd.Flags().IntVar(&port, "port", 0, "port index (l2switch/cloud)")
	return cmd
}
