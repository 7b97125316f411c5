package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scopeline/internal/app"
	"scopeline/internal/config"
	"scopeline/internal/db"
	"scopeline/internal/domain"
	"scopeline/internal/export"
	"scopeline/internal/phase"
	"scopeline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Scopeline CLI",
	Long: `Scopeline guides a consulting engagement from first discovery call to handoff.
Core concepts:
- Workspace: your .scopeline directory holding the database; templates and
  scopeline.yml can override the built-in defaults.
- Engagement: one client's journey through the phases discovery ->
  awaiting_client_decision -> client_approved -> implementation_spec ->
  development -> completed. Each transition is gate-checked, never forced.
- Meeting record: the discovery notes (systems, channels, ROI figures) that
  prefill later answers so the client is never asked twice.
- Services: the purchased catalog items; each spec-requiring service has a
  requirements template with sections and typed fields.
- Plan: the suggested collection order, most service-specific questions first.
- Export: a markdown requirements document for the development team.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SCOPELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("engagement", "", "engagement id (optional when the workspace holds exactly one)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("engagement", rootCmd.PersistentFlags().Lookup("engagement"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(engagementCmd())
	rootCmd.AddCommand(meetingCmd())
	rootCmd.AddCommand(servicesCmd())
	rootCmd.AddCommand(requirementsCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(flagCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default scopeline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func engagementCmd() *cobra.Command {
	eng := &cobra.Command{Use: "engagement", Short: "Manage engagements"}
	eng.AddCommand(engagementCreateCmd())
	eng.AddCommand(engagementListCmd())
	eng.AddCommand(engagementShowCmd())
	return eng
}

func engagementCreateCmd() *cobra.Command {
	var id, client string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an engagement",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env app.Env) error {
				eng, err := env.Engine.CreateEngagement(ctx, id, client, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "engagement id (UUID if omitted)")
	cmd.Flags().StringVar(&client, "client", "", "client name")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func engagementListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List engagements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env app.Env) error {
				items, err := env.Engine.Repo.ListEngagements(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Phase", "Services"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.ClientName, e.Phase, strings.Join(e.PurchasedServices, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func engagementShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current engagement",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				eng, err := env.Engine.Repo.GetEngagement(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	return cmd
}

func meetingCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "meeting",
		Short: "Discovery meeting record",
		Long:  "The meeting record captures what the discovery call surfaced: systems in use, contact channels, ROI figures, goals and pain points. It later prefills the requirements questionnaires.",
	}
	m.AddCommand(meetingImportCmd())
	m.AddCommand(meetingShowCmd())
	return m
}

func meetingImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a meeting record from JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var record domain.MeetingRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("invalid meeting record: %w", err)
			}
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				if err := env.Engine.ImportMeeting(ctx, id, record, viper.GetString("actor-id")); err != nil {
					return err
				}
				stored, err := env.Engine.Repo.GetMeetingRecord(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stored)
				}
				fmt.Printf("Imported meeting record (coverage %.0f%%)\n", stored.Coverage()*100)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to meeting record JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func meetingShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored meeting record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				m, err := env.Engine.Repo.GetMeetingRecord(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				b, _ := json.MarshalIndent(m, "", "  ")
				fmt.Println(string(b))
				fmt.Printf("Coverage: %.0f%%\n", m.Coverage()*100)
				return nil
			})
		},
	}
	return cmd
}

func servicesCmd() *cobra.Command {
	s := &cobra.Command{Use: "services", Short: "Purchased services"}
	s.AddCommand(servicesSetCmd())
	s.AddCommand(servicesCatalogCmd())
	return s
}

func servicesSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <service-id>...",
		Short: "Set the purchased service list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				eng, err := env.Engine.SetPurchasedServices(ctx, id, args, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	return cmd
}

func servicesCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the configured service catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env app.Env) error {
				if viper.GetBool("json") {
					return printJSON(env.Config.Catalog)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Spec"})
				for id, info := range env.Config.Catalog {
					spec := "no"
					if env.Store.Get(id) != nil {
						spec = "yes"
					}
					tw.AppendRow(table.Row{id, info.Name, info.Category, spec})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func requirementsCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "requirements",
		Short: "Requirements collection",
		Long:  "Collects the technical specification per purchased service: plan the order, begin a service (applying meeting prefill), record answers, and watch completion.",
	}
	r.AddCommand(requirementsPlanCmd())
	r.AddCommand(requirementsUnifyCmd())
	r.AddCommand(requirementsStatusCmd())
	r.AddCommand(requirementsBeginCmd())
	r.AddCommand(requirementsAnswerCmd())
	return r
}

func requirementsPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the suggested collection order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				plan, err := env.Engine.Plan(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Service", "Specific", "Shared", "Estimate"})
				for i, s := range plan.Services {
					tw.AppendRow(table.Row{i + 1, s.ServiceID, s.SpecificFields, s.SharedFields, (time.Duration(s.EstimateSeconds) * time.Second).String()})
				}
				tw.Render()
				fmt.Printf("Total: %s\n", (time.Duration(plan.TotalSeconds) * time.Second).String())
				return nil
			})
		},
	}
	return cmd
}

func requirementsUnifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unify",
		Short: "Show shared vs service-specific fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				part, err := env.Engine.Unification(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(part)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Field", "Kind", "Services", "Confidence"})
				for _, sh := range part.Shared {
					tw.AppendRow(table.Row{
						sh.Identity.FieldID,
						sh.Identity.Kind,
						strings.Join(sh.Entry.OwningServices, ", "),
						fmt.Sprintf("%.2f", sh.Confidence),
					})
				}
				tw.Render()
				for svc, entries := range part.ServiceSpecific {
					fmt.Printf("%s: %d service-specific fields\n", svc, len(entries))
				}
				return nil
			})
		},
	}
	return cmd
}

func requirementsStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show completion status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				status, err := env.Engine.Completion(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(status)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Service", "Answered", "Required", "Percent", "Complete"})
				for _, s := range status.Services {
					tw.AppendRow(table.Row{s.ServiceID, s.AnsweredRequired, s.TotalRequired, fmt.Sprintf("%.0f%%", s.Percent), s.Complete})
				}
				tw.Render()
				fmt.Printf("Overall: %.0f%%\n", status.Percent)
				return nil
			})
		},
	}
	return cmd
}

func requirementsBeginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "begin <service-id>",
		Short: "Begin collection for a service (applies meeting prefill)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceID := args[0]
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				set, err := env.Engine.BeginService(ctx, id, serviceID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(set)
			})
		},
	}
	return cmd
}

func requirementsAnswerCmd() *cobra.Command {
	var valuesJSON string
	var sets []string
	cmd := &cobra.Command{
		Use:   "answer <service-id>",
		Short: "Record answers for a service",
		Long:  "Record answers either as --values-json '{\"field\": ...}' or as repeated --set field=value pairs (strings only; use --values-json for numbers, lists and booleans).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceID := args[0]
			values := map[string]any{}
			if valuesJSON != "" {
				if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
					return fmt.Errorf("invalid --values-json: %w", err)
				}
			}
			for _, pair := range sets {
				k, v, ok := strings.Cut(pair, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid --set %q, want field=value", pair)
				}
				values[k] = v
			}
			if len(values) == 0 {
				return fmt.Errorf("nothing to record; pass --values-json or --set")
			}
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				set, err := env.Engine.RecordAnswers(ctx, id, serviceID, values, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(set)
			})
		},
	}
	cmd.Flags().StringVar(&valuesJSON, "values-json", "", "answers as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", []string{}, "field=value pair (repeatable)")
	return cmd
}

func phaseCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "phase",
		Short: "Engagement phase",
		Long:  "Every transition runs through the gate with freshly computed inputs; a blocked transition explains what is missing instead of moving.",
	}
	p.AddCommand(phaseShowCmd())
	p.AddCommand(phaseAdvanceCmd())
	p.AddCommand(phaseBackCmd())
	return p
}

func phaseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current phase and reachable targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				eng, err := env.Engine.Repo.GetEngagement(ctx, id)
				if err != nil {
					return err
				}
				in, err := env.Engine.GateInputs(ctx, eng)
				if err != nil {
					return err
				}
				next := phase.Next(eng.Phase, in)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"phase": eng.Phase, "next": next})
				}
				fmt.Printf("Phase: %s\n", eng.Phase)
				if len(next) == 0 {
					fmt.Println("No reachable transitions right now.")
					return nil
				}
				targets := make([]string, 0, len(next))
				for _, t := range next {
					targets = append(targets, string(t))
				}
				fmt.Printf("Reachable: %s\n", strings.Join(targets, ", "))
				return nil
			})
		},
	}
	return cmd
}

func phaseAdvanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <target>",
		Short: "Advance to a target phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := domain.Phase(args[0])
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				eng, err := env.Engine.AdvancePhase(ctx, id, target, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	return cmd
}

func phaseBackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "back",
		Short: "Return from awaiting_client_decision to discovery",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				eng, err := env.Engine.Backtrack(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	return cmd
}

func flagCmd() *cobra.Command {
	f := &cobra.Command{
		Use:   "flag",
		Short: "Business flags",
		Long:  "Flags record decisions made outside the tool: proposal_sent, client_approved, development_done.",
	}
	f.AddCommand(flagSetCmd())
	f.AddCommand(flagListCmd())
	return f
}

func flagSetCmd() *cobra.Command {
	var value bool
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Set a business flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				if err := env.Engine.SetFlag(ctx, id, name, value, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("%s = %v\n", name, value)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&value, "value", true, "flag value")
	return cmd
}

func flagListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List business flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				flags, err := env.Engine.Repo.GetFlags(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(flags)
			})
		},
	}
	return cmd
}

func templateCmd() *cobra.Command {
	t := &cobra.Command{Use: "template", Short: "Service templates"}
	t.AddCommand(templateListCmd())
	t.AddCommand(templateShowCmd())
	t.AddCommand(templateLintCmd())
	return t
}

func templateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env app.Env) error {
				if viper.GetBool("json") {
					return printJSON(env.Store.ServiceIDs())
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Service", "Title", "Fields", "Required"})
				for _, id := range env.Store.ServiceIDs() {
					tpl := env.Store.Get(id)
					tw.AppendRow(table.Row{id, tpl.Title, tpl.FieldCount(), tpl.RequiredCount()})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func templateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <service-id>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env app.Env) error {
				tpl := env.Store.Get(args[0])
				if tpl == nil {
					return fmt.Errorf("no template for service %s", args[0])
				}
				return printJSONOrTable(tpl)
			})
		},
	}
	return cmd
}

func templateLintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Lint all loaded templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env app.Env) error {
				issues := env.Store.LintAll()
				if viper.GetBool("json") {
					return printJSON(issues)
				}
				if len(issues) == 0 {
					fmt.Println("templates OK")
					return nil
				}
				for _, issue := range issues {
					fmt.Println(issue.String())
				}
				return fmt.Errorf("%d lint issues", len(issues))
			})
		},
	}
	return cmd
}

func exportCmd() *cobra.Command {
	e := &cobra.Command{Use: "export", Short: "Export requirements artifacts"}
	e.AddCommand(exportDocCmd())
	e.AddCommand(exportSummaryCmd())
	return e
}

func exportDocCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Write the markdown requirements document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				eng, err := env.Engine.Repo.GetEngagement(ctx, id)
				if err != nil {
					return err
				}
				answers, err := env.Engine.Repo.AnswerValuesByService(ctx, id)
				if err != nil {
					return err
				}
				s := export.BuildSummary(eng, env.Config, env.Store, answers)
				doc := export.Markdown(s, env.Store, time.Now().UTC().Format(time.RFC3339))
				if out == "" || out == "-" {
					fmt.Print(doc)
					return nil
				}
				if err := os.WriteFile(out, []byte(doc), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "-", "output path, '-' for stdout")
	return cmd
}

func exportSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the JSON requirements summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				eng, err := env.Engine.Repo.GetEngagement(ctx, id)
				if err != nil {
					return err
				}
				answers, err := env.Engine.Repo.AnswerValuesByService(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(export.BuildSummary(eng, env.Config, env.Store, answers))
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened to the engagement.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngagement(cmd.Context(), func(ctx context.Context, env app.Env, id string) error {
				events, err := env.Engine.Repo.LatestEvents(ctx, n, id, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer env.Close()
			secret := os.Getenv("SCOPELINE_JWT_SECRET")
			if secret == "" {
				secret = env.Config.API.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("SCOPELINE_JWT_SECRET (or api.jwt_secret) is required for bearer auth")
			}
			authCfg := server.AuthConfig{
				JWTSecret:              secret,
				AllowLegacyActorHeader: env.Config.API.AllowLegacyActorHeader,
				Logger:                 env.Log,
			}
			handler, err := server.New(server.Config{
				Engine:   env.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Log:      env.Log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Scopeline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEnv(ctx context.Context, fn func(context.Context, app.Env) error) error {
	env, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func withEngagement(ctx context.Context, fn func(context.Context, app.Env, string) error) error {
	return withEnv(ctx, func(ctx context.Context, env app.Env) error {
		id, err := app.ResolveEngagement(ctx, env.Engine.Repo, viper.GetString("engagement"))
		if err != nil {
			return err
		}
		return fn(ctx, env, id)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
