package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func newCmdRegions(g *globalFlags) *cobra.Command {
	var providerName string
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Show the traffic regions a provider can route",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(ctx context.Context, a *app) error {
				name, err := a.defaultProvider(providerName)
				if err != nil {
					return err
				}
				r, err := a.router(name)
				if err != nil {
					return err
				}
				regions := r.SupportedRegions()
				if len(regions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "any")
					return nil
				}
				for _, region := range sortedKeys(regions) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", region, strings.Join(regions[region], ","))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "Provider instance (default: the only configured one)")
	return cmd
}

func newCmdWeights(g *globalFlags) *cobra.Command {
	var providerName string
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show the weights a provider accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(ctx context.Context, a *app) error {
				name, err := a.defaultProvider(providerName)
				if err != nil {
					return err
				}
				r, err := a.router(name)
				if err != nil {
					return err
				}
				weights := r.SupportedWeights()
				if len(weights) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "any")
					return nil
				}
				parts := make([]string, len(weights))
				for i, w := range weights {
					parts[i] = fmt.Sprint(w)
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " "))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "Provider instance (default: the only configured one)")
	return cmd
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
