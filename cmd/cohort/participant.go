package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newParticipantCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Manage participants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a participant and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			pid, err := rt.engine.CreateParticipant(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pid)

			return nil
		},
	})

	return cmd
}

func newAssignCommand(opts *rootOptions) *cobra.Command {
	var trials int

	cmd := &cobra.Command{
		Use:   "assign <participant-id>",
		Short: "Assign a participant to a scenario and trial sequence",
		Long: `Assign a participant to a scenario and trial sequence.

Assigning an already assigned participant returns the stored record without
writing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			a, err := rt.engine.Assign(cmd.Context(), args[0], trials)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), a)
		},
	}

	cmd.Flags().IntVarP(&trials, "trials", "n", 0, "number of trials (0 uses the configured count)")

	return cmd
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <participant-id>",
		Short: "Print a participant's assignment record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			a, err := rt.engine.GetAssignment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a == nil {
				return fmt.Errorf("no assignment for %s", args[0])
			}

			return writeJSON(cmd.OutOrStdout(), a)
		},
	}
}

func newTaskOrderCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "task-order <participant-id>",
		Short: "Print a participant's task order, choosing one if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			order, err := rt.engine.EnsureTaskOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), order)

			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
