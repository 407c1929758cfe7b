package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"gitlab.bluewillows.net/root/zoneweaver/internal/config"
	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/rrapi"
	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// outputFormat is the value of -o/--output.
type outputFormat string

var _ pflag.Value = (*outputFormat)(nil)

func (o *outputFormat) String() string { return string(*o) }

func (o *outputFormat) Type() string { return "format" }

func (o *outputFormat) Set(v string) error {
	switch v {
	case "text", "json", "yaml":
		*o = outputFormat(v)
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, json or yaml)", v)
}

// target is the provider and zone a record-set command works on.
type target struct {
	provider string
	zone     string
}

func newCmdRRset(g *globalFlags) *cobra.Command {
	t := &target{}
	cmd := &cobra.Command{
		Use:   "rrset",
		Short: "List and edit record sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&t.provider, "provider", "p", "", "Provider instance (default: the only configured one)")
	cmd.PersistentFlags().StringVarP(&t.zone, "zone", "z", "", "Zone name")
	_ = cmd.MarkPersistentFlagRequired("zone")

	cmd.AddCommand(
		newCmdRRsetList(g, t),
		newCmdRRsetGet(g, t),
		newCmdRRsetPut(g, t),
		newCmdRRsetDelete(g, t),
	)
	return cmd
}

// open resolves the target's router and canonical zone.
func (t *target) open(a *app) (*rrapi.Router, string, error) {
	name, err := a.defaultProvider(t.provider)
	if err != nil {
		return nil, "", err
	}
	zone := rrset.CanonicalName(t.zone)
	if err := a.checkZone(name, zone); err != nil {
		return nil, "", err
	}
	r, err := a.router(name)
	if err != nil {
		return nil, "", err
	}
	return r, zone, nil
}

func newCmdRRsetList(g *globalFlags, t *target) *cobra.Command {
	var name, typ string
	output := outputFormat("text")
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the record sets of a zone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if typ != "" && name == "" {
				return fmt.Errorf("--type requires --name")
			}
			return run(cmd, g, func(ctx context.Context, a *app) error {
				r, zone, err := t.open(a)
				if err != nil {
					return err
				}
				var it stream.SetIterator
				switch {
				case typ != "":
					it = r.IterateByNameAndType(zone, config.QualifyName(name, zone), strings.ToUpper(typ))
				case name != "":
					it = r.IterateByName(zone, config.QualifyName(name, zone))
				default:
					it = r.Iterate(zone)
				}
				sets, err := stream.CollectSets(ctx, it)
				if err != nil {
					return err
				}
				return printSets(cmd.OutOrStdout(), output, sets)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Only record sets of this name")
	cmd.Flags().StringVar(&typ, "type", "", "Only record sets of this type (requires --name)")
	cmd.Flags().VarP(&output, "output", "o", "Output format (text|json|yaml)")
	return cmd
}

func newCmdRRsetGet(g *globalFlags, t *target) *cobra.Command {
	var qualifier string
	output := outputFormat("text")
	cmd := &cobra.Command{
		Use:   "get NAME TYPE",
		Short: "Show one record set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(ctx context.Context, a *app) error {
				r, zone, err := t.open(a)
				if err != nil {
					return err
				}
				name, typ := config.QualifyName(args[0], zone), strings.ToUpper(args[1])

				var set rrset.RecordSet
				var ok bool
				if qualifier == "" {
					set, ok, err = r.GetByNameAndType(ctx, zone, name, typ)
				} else {
					set, ok, err = r.GetByNameTypeAndQualifier(ctx, zone, name, typ, qualifier)
				}
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("record set %s not found", rrset.NewKey(name, typ, qualifier))
				}
				return printSets(cmd.OutOrStdout(), output, []rrset.RecordSet{set})
			})
		},
	}
	cmd.Flags().StringVarP(&qualifier, "qualifier", "q", "", "Qualifier of a geo or weighted set")
	cmd.Flags().VarP(&output, "output", "o", "Output format (text|json|yaml)")
	return cmd
}

func newCmdRRsetPut(g *globalFlags, t *target) *cobra.Command {
	var (
		ttl       int
		qualifier string
		geo       string
		weight    int
	)
	cmd := &cobra.Command{
		Use:   "put NAME TYPE VALUE...",
		Short: "Replace a record set with the given values",
		Example: `  zoneweaver rrset put -z example.com www A 192.0.2.1 192.0.2.2
  zoneweaver rrset put -z example.com @ MX "10 mail.example.com."
  zoneweaver rrset put -z example.com www CNAME us.cdn.example.net. -q us --geo "US=NY|CA"`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if geo != "" && cmd.Flags().Changed("weight") {
				return fmt.Errorf("--geo and --weight are mutually exclusive")
			}
			return run(cmd, g, func(ctx context.Context, a *app) error {
				r, zone, err := t.open(a)
				if err != nil {
					return err
				}
				set := rrset.RecordSet{
					Name:      config.QualifyName(args[0], zone),
					Type:      strings.ToUpper(args[1]),
					Qualifier: qualifier,
				}
				if cmd.Flags().Changed("ttl") {
					set.TTL = rrset.Int(ttl)
				}
				switch {
				case geo != "":
					regions, err := rrset.ParseRegions(geo)
					if err != nil {
						return err
					}
					set.Profile = &rrset.Geo{Regions: regions}
				case cmd.Flags().Changed("weight"):
					set.Profile = &rrset.Weighted{Weight: weight}
				}
				codec := rrset.Lookup(set.Type)
				for _, text := range args[2:] {
					v, err := codec.Parse(text)
					if err != nil {
						return fmt.Errorf("value %q: %w", text, err)
					}
					set.Records = append(set.Records, v)
				}

				result, err := r.Put(ctx, zone, set)
				printActions(cmd.OutOrStdout(), result)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&ttl, "ttl", 0, "TTL in seconds (default: the configured default TTL)")
	cmd.Flags().StringVarP(&qualifier, "qualifier", "q", "", "Qualifier of a geo or weighted set")
	cmd.Flags().StringVar(&geo, "geo", "", `Geo claim, e.g. "US=NY|CA;EU=DE"`)
	cmd.Flags().IntVar(&weight, "weight", 0, "Weight of a weighted set")
	return cmd
}

func newCmdRRsetDelete(g *globalFlags, t *target) *cobra.Command {
	var qualifier string
	cmd := &cobra.Command{
		Use:   "delete NAME TYPE",
		Short: "Delete a record set",
		Long: `Delete a record set. Without --qualifier the unqualified set and every
qualified set of the name and type are removed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(ctx context.Context, a *app) error {
				r, zone, err := t.open(a)
				if err != nil {
					return err
				}
				name, typ := config.QualifyName(args[0], zone), strings.ToUpper(args[1])

				var result *reconciler.Result
				if qualifier == "" {
					result, err = r.DeleteByNameAndType(ctx, zone, name, typ)
				} else {
					result, err = r.DeleteByNameTypeAndQualifier(ctx, zone, name, typ, qualifier)
				}
				printActions(cmd.OutOrStdout(), result)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&qualifier, "qualifier", "q", "", "Only this qualifier")
	return cmd
}

// setView renders a record set the way the desired-state file declares it.
type setView struct {
	Name      string              `json:"name" yaml:"name"`
	Type      string              `json:"type" yaml:"type"`
	TTL       *int                `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Qualifier string              `json:"qualifier,omitempty" yaml:"qualifier,omitempty"`
	Geo       map[string][]string `json:"geo,omitempty" yaml:"geo,omitempty"`
	Weight    *int                `json:"weight,omitempty" yaml:"weight,omitempty"`
	Values    []string            `json:"values" yaml:"values"`
}

func viewOf(set rrset.RecordSet) setView {
	codec := rrset.Lookup(set.Type)
	v := setView{
		Name:      set.Name,
		Type:      set.Type,
		TTL:       set.TTL,
		Qualifier: set.Qualifier,
		Values:    make([]string, 0, len(set.Records)),
	}
	switch p := set.Profile.(type) {
	case *rrset.Geo:
		v.Geo = p.Regions
	case *rrset.Weighted:
		v.Weight = rrset.Int(p.Weight)
	}
	for _, rec := range set.Records {
		v.Values = append(v.Values, codec.Format(rec))
	}
	return v
}

func printSets(w io.Writer, format outputFormat, sets []rrset.RecordSet) error {
	views := make([]setView, 0, len(sets))
	for _, s := range sets {
		views = append(views, viewOf(s))
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTYPE\tTTL\tQUALIFIER\tPROFILE\tVALUE")
		for i, s := range sets {
			ttl, profile := "-", "-"
			if s.TTL != nil {
				ttl = fmt.Sprint(*s.TTL)
			}
			if s.Profile != nil {
				profile = fmt.Sprint(s.Profile)
			}
			qualifier := s.Qualifier
			if qualifier == "" {
				qualifier = "-"
			}
			for _, value := range views[i].Values {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name, s.Type, ttl, qualifier, profile, value)
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printActions(w io.Writer, result *reconciler.Result) {
	if result == nil {
		return
	}
	changed := append(result.Writes(), result.Failed()...)
	if len(changed) == 0 {
		fmt.Fprintln(w, "no changes")
		return
	}
	for _, a := range changed {
		fmt.Fprintln(w, a.String())
	}
}
