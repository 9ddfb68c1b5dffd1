package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/edoardomanca/greta/internal/config"
	"github.com/edoardomanca/greta/internal/sip"
)

func main() {
	var (
		configDir string
		direct    bool
	)

	root := &cobra.Command{
		Use:           "sipctl",
		Short:         "Provision SIP trunks and dispatch rules for the greta worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding the trunk and dispatch descriptors (default $SIP_CONFIG_DIR)")
	root.PersistentFlags().BoolVar(&direct, "direct", false, "call the platform API directly instead of shelling out to the lk CLI")

	loadEnv := func() (config.Config, sip.Backend, error) {
		cfg, err := config.Load()
		if err != nil {
			return config.Config{}, nil, err
		}
		if configDir == "" {
			configDir = cfg.SIPConfigDir
		}
		if direct {
			if err := cfg.RequireProvisioning(); err != nil {
				return config.Config{}, nil, err
			}
			return cfg, sip.NewAPIBackend(cfg.SIPLiveKitURL, cfg.SIPLiveKitAPIKey, cfg.SIPLiveKitAPISecret), nil
		}
		return cfg, sip.NewCLIBackend(cfg.LKCLIPath, sip.NewExecRunner()), nil
	}

	createCmd := func(use, short string, kind sip.DescriptorKind) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, backend, err := loadEnv()
				if err != nil {
					return err
				}
				if err := backend.Available(); err != nil {
					return fmt.Errorf("%s: %w", backend.Name(), err)
				}
				d, err := sip.LoadDescriptor(configDir, kind)
				if err != nil {
					return err
				}
				var detail string
				switch kind {
				case sip.InboundTrunk:
					detail, err = backend.CreateInboundTrunk(cmd.Context(), d)
				case sip.OutboundTrunk:
					detail, err = backend.CreateOutboundTrunk(cmd.Context(), d)
				case sip.DispatchRule:
					detail, err = backend.CreateDispatchRule(cmd.Context(), d)
				}
				if err != nil {
					return err
				}
				log.Printf("%s: %s", kind, detail)
				return nil
			},
		}
	}

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Create inbound trunk, outbound trunk, and dispatch rule, then list the result",
		Long: `Runs the full provisioning sequence against the descriptor directory.
Each step is best-effort: a missing descriptor skips its step and a platform
failure is reported without stopping the remaining steps.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, backend, err := loadEnv()
			if err != nil {
				return err
			}
			results, err := sip.NewProvisioner(backend, configDir, log.Default()).Run(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Name == "list" && r.Status == sip.StepOK {
					fmt.Fprint(os.Stdout, r.Detail)
					continue
				}
				fmt.Fprintf(os.Stdout, "%-15s %s\n", r.Name, r.Status)
			}
			if sip.Failed(results) {
				return fmt.Errorf("one or more provisioning steps failed")
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List existing trunks and dispatch rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, backend, err := loadEnv()
			if err != nil {
				return err
			}
			if err := backend.Available(); err != nil {
				return fmt.Errorf("%s: %w", backend.Name(), err)
			}
			out, err := backend.List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, out)
			return nil
		},
	}

	directOnly := func(backend sip.Backend) (*sip.APIBackend, error) {
		api, ok := backend.(*sip.APIBackend)
		if !ok {
			return nil, fmt.Errorf("this command requires --direct")
		}
		return api, nil
	}

	deleteTrunkCmd := &cobra.Command{
		Use:   "delete-trunk <trunk-id>",
		Short: "Delete a SIP trunk by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, backend, err := loadEnv()
			if err != nil {
				return err
			}
			api, err := directOnly(backend)
			if err != nil {
				return err
			}
			if err := api.DeleteTrunk(cmd.Context(), args[0]); err != nil {
				return err
			}
			log.Printf("deleted trunk %s", args[0])
			return nil
		},
	}

	deleteRuleCmd := &cobra.Command{
		Use:   "delete-rule <rule-id>",
		Short: "Delete a SIP dispatch rule by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, backend, err := loadEnv()
			if err != nil {
				return err
			}
			api, err := directOnly(backend)
			if err != nil {
				return err
			}
			if err := api.DeleteDispatchRule(cmd.Context(), args[0]); err != nil {
				return err
			}
			log.Printf("deleted dispatch rule %s", args[0])
			return nil
		},
	}

	dispatchPrefixCmd := &cobra.Command{
		Use:   "dispatch-prefix <trunk-id>...",
		Short: "Create a per-call dispatch rule that routes each call into its own room",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, backend, err := loadEnv()
			if err != nil {
				return err
			}
			api, err := directOnly(backend)
			if err != nil {
				return err
			}
			id, err := api.CreateRoomPrefixDispatchRule(cmd.Context(), "per-call", cfg.RoomPrefix, args)
			if err != nil {
				return err
			}
			log.Printf("created dispatch rule %s with room prefix %q", id, cfg.RoomPrefix)
			return nil
		},
	}

	root.AddCommand(
		setupCmd,
		createCmd("inbound", "Create the inbound trunk from its descriptor", sip.InboundTrunk),
		createCmd("outbound", "Create the outbound trunk from its descriptor", sip.OutboundTrunk),
		createCmd("dispatch", "Create the dispatch rule from its descriptor", sip.DispatchRule),
		dispatchPrefixCmd,
		listCmd,
		deleteTrunkCmd,
		deleteRuleCmd,
	)

	if err := root.Execute(); err != nil {
		log.Fatalf("sipctl: %v", err)
	}
}
