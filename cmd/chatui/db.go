package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/iyou00/chatui/internal/db"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var (
		configPath string
		templates  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the chatui tables",
		Long: `Migrates all tables in the configured database. Each --template name=path
flag upserts a saved prompt template from a file, so tasks can reference it
by ID.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath, templates)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to chatui config file")
	cmd.Flags().StringToStringVar(&templates, "template", nil, "prompt template to seed, as name=path (repeatable)")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string, templatePaths map[string]string) error {
	out := cmd.OutOrStdout()

	cfg, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := db.AutoMigrate(st.DB()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if len(templatePaths) == 0 {
		return nil
	}
	contents := make(map[string]string, len(templatePaths))
	names := make([]string, 0, len(templatePaths))
	for name, path := range templatePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read template %q: %w", name, err)
		}
		contents[name] = string(data)
		names = append(names, name)
	}
	if err := db.SeedTemplates(st.DB(), contents); err != nil {
		return err
	}
	sort.Strings(names)
	fmt.Fprintf(out, "Seeded %d templates:", len(names))
	for _, n := range names {
		fmt.Fprintf(out, " %s", n)
	}
	fmt.Fprintln(out)
	return nil
}
