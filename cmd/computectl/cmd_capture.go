package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnetlab/compute/pkg/registry"
)

func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Start or stop a packet capture on a link endpoint",
	}
	cmd.AddCommand(newCaptureStartCmd(), newCaptureStopCmd())
	return cmd
}

func newCaptureStartCmd() *cobra.Command {
	var adapter, port int
	var path, dlt string
	cmd := &cobra.Command{
		Use:   "start <node>",
		Short: "Start a capture",
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
			if err := registry.StartCapture(cfg, s, args[0], adapter, port, path, dlt); err != nil {
				return err
			}
			fmt.Printf("%s: capture started -> %s\n", args[0], path)
			return nil
		},
	}
	cmd.Flags().IntVar(&adapter, "adapter", 0, "adapter index")
	cmd.Flags().IntVar(&port, "port", 0, "port index")
	cmd.Flags().StringVar(&path, "path", "", "pcap output path (required)")
	cmd.Flags().StringVar(&dlt, "dlt", "DLT_EN10MB", "data-link type")
	cmd.MarkFlagRequired("path")
	return cmd
}

func newCaptureStopCmd() *cobra.Command {
	var adapter, port int
	cmd := &cobra.Command{
		Use:   "stop <node>",
		Short: "Stop a capture",
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
			if err := registry.StopCapture(cfg, s, args[0], adapter, port); err != nil {
				return err
			}
			fmt.Printf("%s: capture stopped\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&adapter, "adapter", 0, "adapter index")
	cmd.Flags().IntVar(&port, "port", 0, "port index")
	return cmd
}
