package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hlsfarm/internal/catalog"
)

type listPage[T any] struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Items []T   `json:"items"`
}

func fetchPage[T any](cmdCtx *commandContext, resource string, page int) (*listPage[T], error) {
	base, err := cmdCtx.apiBaseURL()
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/v1/%s?page=%d", base, resource, page)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w (is `hlsfarm api` running?)", resource, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: unexpected status %s", resource, resp.Status)
	}

	var result listPage[T]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", resource, err)
	}
	return &result, nil
}

func newVideosCommand(cmdCtx *commandContext) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List cataloged videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := fetchPage[catalog.Video](cmdCtx, "videos", page)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(result.Items))
			for _, v := range result.Items {
				rows = append(rows, []string{
					shortID(v.ID.String()),
					v.Filename,
					string(v.Status),
					v.HLSPath,
					v.UpdatedAt.Format(time.RFC3339),
				})
			}
			printListing(cmd, result.Total, result.Page,
				[]string{"ID", "FILE", "STATUS", "STREAM", "UPDATED"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	return cmd
}

func newJobsCommand(cmdCtx *commandContext) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List encoding jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := fetchPage[catalog.EncodingJob](cmdCtx, "jobs", page)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(result.Items))
			for _, j := range result.Items {
				rows = append(rows, []string{
					shortID(j.ID.String()),
					shortID(j.VideoID.String()),
					j.WorkerID,
					string(j.Status),
					strconv.Itoa(j.Progress) + "%",
				})
			}
			printListing(cmd, result.Total, result.Page,
				[]string{"ID", "VIDEO", "WORKER", "STATUS", "PROGRESS"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	return cmd
}

func newWorkersCommand(cmdCtx *commandContext) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := fetchPage[catalog.Worker](cmdCtx, "workers", page)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(result.Items))
			for _, w := range result.Items {
				rows = append(rows, []string{
					w.Hostname,
					string(w.Status),
					fmt.Sprintf("%.1f%%", w.CPUUsage),
					fmt.Sprintf("%.1f%%", w.MemoryUsage),
					w.LastHeartbeat.Format(time.RFC3339),
				})
			}
			printListing(cmd, result.Total, result.Page,
				[]string{"HOSTNAME", "STATUS", "CPU", "MEMORY", "LAST SEEN"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	return cmd
}

func printListing(cmd *cobra.Command, total int64, page int, headers []string, rows [][]string) {
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No entries.")
		return
	}
	fmt.Fprintln(out, renderTable(headers, rows))
	fmt.Fprintf(out, "%d total, page %d\n", total, page)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
