package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skillpath/skillpath-hub/internal/app"
	"github.com/skillpath/skillpath-hub/internal/application/command"
	"github.com/skillpath/skillpath-hub/internal/application/query"
	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/infrastructure/persistence/postgres"
	httpserver "github.com/skillpath/skillpath-hub/internal/interface/http"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(cmd, func(m *postgres.Migrator) error {
				n, err := m.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(cmd, func(m *postgres.Migrator) error {
				if err := m.Rollback(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back latest migration")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(cmd, func(m *postgres.Migrator) error {
				status, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, mig := range status {
					applied := "no"
					if mig.IsApplied {
						applied = mig.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
				}
				return w.Flush()
			})
		},
	})

	return cmd
}

func (c *cli) withDB(cmd *cobra.Command, fn func(*postgres.Migrator) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	conn, err := postgres.NewConnection(cmd.Context(), app.PostgresConfig(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(postgres.NewMigrator(conn))
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// courseFile is the YAML or JSON document accepted by "course add --file".
type courseFile struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Image       string `yaml:"image" json:"image"`
}

func (c *cli) courseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Manage the credential course registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered courses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				courses, err := a.Queries.Ledger.Courses(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tIMAGE")
				for _, course := range courses {
					fmt.Fprintf(w, "%s\t%s\t%s\n", course.ID, course.Name, course.ImageURI)
				}
				return w.Flush()
			})
		},
	})

	var (
		file string
		in   courseFile
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a course from flags or a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			course := in
			if file != "" {
				loaded, err := readCourseFile(file)
				if err != nil {
					return err
				}
				course = loaded
			}
			return c.withApp(cmd, func(a *app.App) error {
				added, err := a.Commands.Registry.AddCourse(cmd.Context(), command.AddCourseCommand{
					System: true,
					Course: credential.Course{ID: course.ID, Name: course.Name, Description: course.Description, ImageURI: course.Image},
				})
				if err != nil {
					return err
				}
				return c.print(cmd, added)
			})
		},
	}
	add.Flags().StringVarP(&file, "file", "f", "", "course document (YAML or JSON)")
	add.Flags().StringVar(&in.ID, "id", "", "course id")
	add.Flags().StringVar(&in.Name, "name", "", "course name")
	add.Flags().StringVar(&in.Description, "description", "", "course description")
	add.Flags().StringVar(&in.Image, "image", "", "trophy image URI")
	cmd.AddCommand(add)

	var upd courseFile
	update := &cobra.Command{
		Use:   "update <course-id>",
		Short: "Change the name, description or image of a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				current, err := a.Queries.Ledger.CourseEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				if flags.Changed("name") {
					current.Name = upd.Name
				}
				if flags.Changed("description") {
					current.Description = upd.Description
				}
				if flags.Changed("image") {
					current.ImageURI = upd.Image
				}
				updated, err := a.Commands.Registry.UpdateCourse(cmd.Context(), command.UpdateCourseCommand{
					System: true,
					Course: current,
				})
				if err != nil {
					return err
				}
				return c.print(cmd, updated)
			})
		},
	}
	update.Flags().StringVar(&upd.Name, "name", "", "new course name")
	update.Flags().StringVar(&upd.Description, "description", "", "new description")
	update.Flags().StringVar(&upd.Image, "image", "", "new trophy image URI")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Register every catalog course missing from the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				res, err := a.Commands.Registry.RegisterCatalog(cmd.Context(), a.Catalog, a.Config.Ledger.ImageBaseURI)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d, already registered %d\n", len(res.Added), len(res.Skipped))
				return nil
			})
		},
	})

	return cmd
}

func readCourseFile(path string) (courseFile, error) {
	var out courseFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	// YAML is a superset of JSON, so one decoder covers both.
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) progressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect, export and import learner progress",
	}

	var out string
	export := &cobra.Command{
		Use:   "export <identity>",
		Short: "Write a learner's progress snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				snap, err := a.Queries.Export.Handle(cmd.Context(), query.ExportProgressQuery{Identity: args[0]})
				if err != nil {
					return err
				}
				doc, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
					return err
				}
				return os.WriteFile(out, append(doc, '\n'), 0o600)
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <identity> <file|->",
		Short: "Replace a learner's progress with a snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app.App) error {
				res, err := a.Commands.Import.Handle(cmd.Context(), command.ImportProgressCommand{Identity: args[0], Document: doc})
				if err != nil {
					return err
				}
				return c.print(cmd, res)
			})
		},
	})

	var confirm bool
	reset := &cobra.Command{
		Use:   "reset <identity> <course-id>",
		Short: "Clear a learner's progress in one course",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				_, err := a.Commands.ResetCourse.Handle(cmd.Context(), command.ResetCourseCommand{
					Identity: args[0],
					CourseID: args[1],
					Confirm:  confirm,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s for %s\n", args[1], args[0])
				return nil
			})
		},
	}
	reset.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")
	cmd.AddCommand(reset)

	cmd.AddCommand(&cobra.Command{
		Use:   "stats <identity>",
		Short: "Show a learner's statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				stats, err := a.Queries.Statistics.Handle(cmd.Context(), query.GetStatisticsQuery{Identity: args[0]})
				if err != nil {
					return err
				}
				return c.print(cmd, stats)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Show platform-wide progress figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				summary, err := a.Queries.Summary.Handle(cmd.Context(), query.GetSummaryQuery{})
				if err != nil {
					return err
				}
				return c.print(cmd, summary)
			})
		},
	})

	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDENTIALS & TOKENS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Inspect issued credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <token-id>",
		Short: "Show a credential and its metadata document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token id %q", args[0])
			}
			return c.withApp(cmd, func(a *app.App) error {
				dto, err := a.Queries.Metadata.Handle(cmd.Context(), query.GetCredentialMetadataQuery{TokenID: tokenID})
				if err != nil {
					return err
				}
				return c.print(cmd, dto)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <identity>",
		Short: "List an identity's credentials, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				creds, err := a.Queries.Credentials.Handle(cmd.Context(), query.GetUserCredentialsQuery{Identity: args[0]})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TOKEN\tCOURSE\tNAME\tISSUED")
				for _, cred := range creds {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", cred.TokenID, cred.CourseID, cred.CourseName, cred.IssuedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	})

	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue API bearer tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "mint <identity>",
		Short: "Sign a bearer token for identity with AUTH_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			token, exp, err := httpserver.NewAuthenticator(cfg.Auth, false).IssueToken(args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, map[string]any{"token": token, "expires_at": exp.UTC()})
		},
	})

	return cmd
}

func (c *cli) featuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List feature flags as resolved from the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			all := cfg.Features.GetAllFeatures()
			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FEATURE\tENABLED\tROLLOUT\tDESCRIPTION")
			for _, name := range names {
				f := all[name]
				fmt.Fprintf(w, "%s\t%t\t%d%%\t%s\n", f.Name, f.Enabled, f.RolloutPercent, f.Description)
			}
			return w.Flush()
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

// print writes v as indented JSON, or YAML when --output yaml is set.
func (c *cli) print(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("output")
	w := cmd.OutOrStdout()
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(v)); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// toPlain round-trips v through JSON so YAML output follows the json tags.
func toPlain(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
