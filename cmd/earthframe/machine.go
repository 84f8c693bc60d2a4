package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/earthframe/earthframe/pkg/hostinfo"
	"github.com/spf13/cobra"
)

var (
	machineName      string
	machineSite      string
	machineScheduler string
	machineGPU       bool
	machineNotes     string
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Manage machines",
}

var registerHostCmd = &cobra.Command{
	Use:   "register-host",
	Short: "Register the host this command runs on as a machine",
	Long: `Probe the local host (hostname, CPU, OS) and store it as a machine.
The architecture is derived from the CPU; name defaults to the hostname.`,
	Args: cobra.NoArgs,
	RunE: runRegisterHost,
}

func init() {
	registerHostCmd.Flags().StringVar(&machineName, "name", "", "machine name (default: hostname)")
	registerHostCmd.Flags().StringVar(&machineSite, "site", "", "computing facility, e.g. NERSC")
	registerHostCmd.Flags().StringVar(&machineScheduler, "scheduler", "slurm", "batch scheduler")
	registerHostCmd.Flags().BoolVar(&machineGPU, "gpu", false, "machine has GPUs")
	registerHostCmd.Flags().StringVar(&machineNotes, "notes", "", "notes (default: probed host details)")

	_ = registerHostCmd.MarkFlagRequired("site")

	machineCmd.AddCommand(registerHostCmd)
	rootCmd.AddCommand(machineCmd)
}

func runRegisterHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()

	info, err := hostinfo.Probe(ctx)
	if err != nil {
		return err
	}

	name := machineName
	if name == "" {
		name = info.Hostname
	}

	notes := machineNotes
	if notes == "" {
		notes = info.Notes()
	}

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}
	defer func() { _ = st.Stop() }()

	machine := &store.Machine{
		Name:         name,
		Site:         machineSite,
		Architecture: info.Architecture(),
		Scheduler:    machineScheduler,
		GPU:          machineGPU,
		Notes:        &notes,
	}

	if err := st.CreateMachine(ctx, machine); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("machine %q is already registered", name)
		}

		return err
	}

	log.WithField("id", machine.ID).
		WithField("name", machine.Name).
		WithField("architecture", machine.Architecture).
		Info("Machine registered")

	return nil
}
