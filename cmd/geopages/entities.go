package main

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/geopages/internal/command"
	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/TobiSchelling/geopages/internal/slug"
	"github.com/spf13/cobra"
)

var (
	entityParent string
	entitySlug   string
	listType     string
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Manage states and cities",
}

var entitiesAddCmd = &cobra.Command{
	Use:   "add [state|city] [name]",
	Short: "Add a state or city",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, err := parsePageType(args[0])
		if err != nil {
			return err
		}
		name := strings.TrimSpace(args[1])

		s := entitySlug
		if s == "" {
			s = slug.Make(name)
		}
		if !slug.Valid(s) {
			return fmt.Errorf("invalid slug %q", s)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var parentID *int64
		if entityParent != "" {
			if entityType != database.PageTypeCity {
				return fmt.Errorf("only cities have a parent state")
			}
			parent, err := db.GetGeoEntityBySlug(database.PageTypeState, slug.Make(entityParent))
			if err != nil {
				return err
			}
			if parent == nil {
				return fmt.Errorf("state %q not found", entityParent)
			}
			parentID = &parent.ID
		}

		id, err := db.InsertGeoEntity(entityType, name, s, parentID)
		if err != nil {
			return fmt.Errorf("adding %s: %w", entityType, err)
		}
		fmt.Printf("Added %s [%d]: %s (%s)\n", entityType, id, name, s)
		return nil
	},
}

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List states and cities",
	RunE: func(cmd *cobra.Command, args []string) error {
		var entityType database.PageType
		if listType != "" {
			t, err := parsePageType(listType)
			if err != nil {
				return err
			}
			entityType = t
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entities, err := db.ListGeoEntities(entityType)
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			fmt.Println("No entities yet. Add one with: geopages entities add state \"Illinois\"")
			return nil
		}
		for _, e := range entities {
			icon := " "
			if e.PageExists {
				icon = "*"
			}
			active := ""
			if !e.IsActive {
				active = " (inactive)"
			}
			parent := ""
			if e.ParentName != nil {
				parent = ", " + *e.ParentName
			}
			fmt.Printf("  [%d] %s %s %s%s [%s]%s\n", e.ID, icon, e.EntityType, e.Name, parent, e.Slug, active)
		}
		return nil
	},
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [entity-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "entity")
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SetGeoEntityActive(id, active); err != nil {
				return err
			}
			fmt.Printf("Entity [%d] %sd\n", id, use)
			return nil
		},
	}
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the publishing policy",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := dispatch(command.ActionGetSettings, nil, false)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: "Change one setting. Keys: auto_publish_enabled, auto_publish_threshold, max_daily_generations,\n" +
		"content_min_words, content_max_words, require_admin_approval.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := dispatch(command.ActionUpdateSettings, map[string]any{
			"key": args[0], "value": settingValue(args[1]),
		}, false)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

func init() {
	entitiesAddCmd.Flags().StringVar(&entityParent, "parent", "", "Parent state name or slug (cities only)")
	entitiesAddCmd.Flags().StringVar(&entitySlug, "slug", "", "Override the generated slug")
	entitiesListCmd.Flags().StringVar(&listType, "type", "", "Only list state or city entities")

	entitiesCmd.AddCommand(entitiesAddCmd)
	entitiesCmd.AddCommand(entitiesListCmd)
	entitiesCmd.AddCommand(setActiveCmd("activate", "Mark an entity active", true))
	entitiesCmd.AddCommand(setActiveCmd("deactivate", "Mark an entity inactive", false))
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(settingsCmd)
}
