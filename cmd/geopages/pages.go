package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/TobiSchelling/geopages/internal/command"
	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/TobiSchelling/geopages/internal/pipeline"
	"github.com/spf13/cobra"
)

var actingUser string

func init() {
	for _, c := range []*cobra.Command{enqueueCmd, generateCmd, publishCmd, rejectCmd, rollbackCmd, bulkCmd} {
		c.Flags().StringVarP(&actingUser, "user", "u", "", "Acting user recorded on the queue item")
	}
	generateCmd.Flags().Int64Var(&generateQueueID, "queue-id", 0, "Resume an existing queue item")
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Why the draft was rejected")
	queueCmd.Flags().StringVar(&queueStatus, "status", "", "Filter by status")
	queueCmd.Flags().StringVar(&queueType, "type", "", "Filter by page type (state or city)")
	queueCmd.Flags().StringVar(&queueBatch, "batch", "", "Filter by bulk batch id")
	queueCmd.Flags().IntVar(&queueLimit, "limit", 50, "Maximum rows")

	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(versionsCmd)
}

func userPtr() *string {
	if actingUser == "" {
		return nil
	}
	return &actingUser
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", what, s)
	}
	return id, nil
}

func parsePageType(s string) (database.PageType, error) {
	t := database.PageType(strings.ToLower(s))
	if !t.Valid() {
		return "", fmt.Errorf("page type must be state or city, got %q", s)
	}
	return t, nil
}

func printItem(item *database.QueueItem) {
	fmt.Printf("  [%d] %s %s: %s (attempts %d)\n", item.ID, item.PageType, item.EntitySlug, item.Status, item.GenerationAttempts)
	if item.AIConfidenceScore != nil {
		fmt.Printf("        confidence %.2f\n", *item.AIConfidenceScore)
	}
	for _, e := range item.SeoValidationErrors {
		fmt.Printf("        - %s\n", e)
	}
	if item.ErrorMessage != nil {
		fmt.Printf("        error: %s\n", *item.ErrorMessage)
	}
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [state|city] [entity-id]",
	Short: "Queue a page for generation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageType, err := parsePageType(args[0])
		if err != nil {
			return err
		}
		id, err := parseID(args[1], "entity")
		if err != nil {
			return err
		}

		data, err := dispatch(command.ActionEnqueuePage, map[string]any{
			"entity_type": pageType, "entity_id": id, "user": userPtr(),
		}, false)
		if err != nil {
			return err
		}
		res := data.(command.EnqueueResult)
		if res.Created {
			fmt.Println("Queued:")
		} else {
			fmt.Println("Already queued:")
		}
		printItem(res.Item)
		return nil
	},
}

var generateQueueID int64

var generateCmd = &cobra.Command{
	Use:   "generate [state|city] [entity-id]",
	Short: "Generate, validate and (if policy allows) publish a page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageType, err := parsePageType(args[0])
		if err != nil {
			return err
		}
		id, err := parseID(args[1], "entity")
		if err != nil {
			return err
		}

		action := command.ActionGenerateCityContent
		if pageType == database.PageTypeState {
			action = command.ActionGenerateStateContent
		}
		payload := map[string]any{"entity_id": id, "user": userPtr()}
		if generateQueueID > 0 {
			payload["queue_id"] = generateQueueID
		}

		data, err := dispatch(action, payload, true)
		if err != nil {
			return err
		}
		res := data.(*pipeline.GenerateResult)
		for i, step := range res.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(res.Steps), step.Name)
			fmt.Printf("  %s\n", step.Summary)
		}
		fmt.Println()
		printItem(res.Item)
		if res.Page != nil {
			fmt.Printf("\nLive at /pages/%s/%s\n", res.Page.PageType, res.Page.Slug)
		}
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish [queue-id]",
	Short: "Approve and publish a validated draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "queue item")
		if err != nil {
			return err
		}
		data, err := dispatch(command.ActionPublishPage, map[string]any{"queue_id": id, "user": userPtr()}, false)
		if err != nil {
			return err
		}
		res := data.(command.PageResult)
		printItem(res.Item)
		if res.Page != nil {
			fmt.Printf("Published /pages/%s/%s (%d words)\n", res.Page.PageType, res.Page.Slug, res.Page.WordCount)
		}
		return nil
	},
}

var rejectReason string

var rejectCmd = &cobra.Command{
	Use:   "reject [queue-id]",
	Short: "Reject a draft without touching live content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "queue item")
		if err != nil {
			return err
		}
		payload := map[string]any{"queue_id": id, "user": userPtr()}
		if rejectReason != "" {
			payload["reason"] = rejectReason
		}
		data, err := dispatch(command.ActionRejectPage, payload, false)
		if err != nil {
			return err
		}
		printItem(data.(*database.QueueItem))
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [page-id] [version-id]",
	Short: "Restore a live page from one of its versions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageID, err := parseID(args[0], "page")
		if err != nil {
			return err
		}
		versionID, err := parseID(args[1], "version")
		if err != nil {
			return err
		}
		data, err := dispatch(command.ActionRollbackPage, map[string]any{
			"seo_page_id": pageID, "version_id": versionID, "user": userPtr(),
		}, false)
		if err != nil {
			return err
		}
		res := data.(command.PageResult)
		fmt.Printf("Restored /pages/%s/%s from version %d\n", res.Page.PageType, res.Page.Slug, versionID)
		printItem(res.Item)
		return nil
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk [state|city] [entity-id...]",
	Short: "Generate pages for many entities, one after another",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageType, err := parsePageType(args[0])
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(args)-1)
		for _, a := range args[1:] {
			id, err := parseID(a, "entity")
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		data, err := dispatch(command.ActionBulkGenerate, map[string]any{
			"entity_type": pageType, "entity_ids": ids, "user": userPtr(),
		}, true)
		if err != nil {
			return err
		}
		res := data.(*pipeline.BulkResult)
		fmt.Printf("Batch %s\n\n", res.BatchID)
		for _, o := range res.Outcomes {
			mark := "ok  "
			if !o.Success {
				mark = "FAIL"
			}
			fmt.Printf("  %s entity %d -> %s %s\n", mark, o.EntityID, o.Status, o.Message)
		}
		fmt.Printf("\n%d total, %d succeeded, %d failed\n", res.Total, res.Succeeded, res.Failed)
		return nil
	},
}

var (
	queueStatus string
	queueType   string
	queueBatch  string
	queueLimit  int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List queue items, highest priority first",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := dispatch(command.ActionGetQueue, map[string]any{
			"status": queueStatus, "page_type": queueType, "batch_id": queueBatch, "limit": queueLimit,
		}, false)
		if err != nil {
			return err
		}
		items := data.([]database.QueueItem)
		if len(items) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		for i := range items {
			printItem(&items[i])
		}
		return nil
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions [page-id]",
	Short: "List the saved versions of a live page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "page")
		if err != nil {
			return err
		}
		data, err := dispatch(command.ActionListVersions, map[string]any{"seo_page_id": id}, false)
		if err != nil {
			return err
		}
		versions := data.([]database.PageVersion)
		if len(versions) == 0 {
			fmt.Println("No versions yet. A version is saved each time the page is republished.")
			return nil
		}
		for _, v := range versions {
			fmt.Printf("  [%d] %s  %d words  (replaced by queue item %d)\n", v.ID, v.CapturedAt, v.WordCount, v.SupersededByQueueItemID)
		}
		return nil
	},
}

// settingValue turns a CLI argument into a JSON value. Anything that is not
// valid JSON is sent as a string.
func settingValue(arg string) json.RawMessage {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	quoted, _ := json.Marshal(arg)
	return quoted
}
