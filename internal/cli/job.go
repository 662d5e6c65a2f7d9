package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage cron jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobCreateCmd(clientFn, outputFn),
		newJobDeleteCmd(clientFn, outputFn),
		newJobToggleCmd(clientFn, outputFn, "enable", true),
		newJobToggleCmd(clientFn, outputFn, "disable", false),
		newJobExecutionsCmd(clientFn, outputFn),
	)

	return cmd
}

var jobHeaders = []string{"ID", "NAME", "CRON", "ACTIVE", "CREATED_AT"}

func jobRow(j JobResponse) []string {
	return []string{j.ID, j.Name, j.CronExpression, strconv.FormatBool(j.IsActive), j.CreatedAt}
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := clientFn().ListJobs(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = jobRow(j)
			}

			outputFn().Print(jobHeaders, rows, jobs, "No jobs found")
			return nil
		},
	}
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := clientFn().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			outputFn().Detail([][2]string{
				{"ID", job.ID},
				{"Name", job.Name},
				{"Cron", job.CronExpression + " (UTC)"},
				{"Active", strconv.FormatBool(job.IsActive)},
				{"Created", job.CreatedAt},
				{"Payload", string(job.TaskPayload)},
			}, job)
			return nil
		},
	}
}

func newJobCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		name        string
		cronExpr    string
		payload     string
		payloadFile string
		callURL     string
		method      string
		headers     []string
		inactive    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job",
		Long: `Create a job. The task payload is given either as raw JSON
(--payload / --payload-file) or built from --url, --method and --header.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := buildPayload(payload, payloadFile, callURL, method, headers)
			if err != nil {
				return err
			}

			req := CreateJobRequest{
				Name:           name,
				CronExpression: cronExpr,
				TaskPayload:    raw,
			}
			if inactive {
				active := false
				req.IsActive = &active
			}

			job, err := clientFn().CreateJob(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Job created: %s", job.ID))
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job, "")
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Job name (required)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression in UTC, e.g. '0 2 * * *' (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "Task payload as JSON")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read task payload from file")
	cmd.Flags().StringVar(&callURL, "url", "", "API_CALL url")
	cmd.Flags().StringVar(&method, "method", "GET", "API_CALL method")
	cmd.Flags().StringSliceVar(&headers, "header", nil, "API_CALL header as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the job disabled")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("cron")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file", "url")

	return cmd
}

// buildPayload собирает task_payload из флагов create.
func buildPayload(payload, payloadFile, callURL, method string, headers []string) (json.RawMessage, error) {
	switch {
	case payload != "":
		if !json.Valid([]byte(payload)) {
			return nil, errors.New("--payload is not valid JSON")
		}
		return json.RawMessage(payload), nil

	case payloadFile != "":
		data, err := os.ReadFile(payloadFile)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s is not valid JSON", payloadFile)
		}
		return json.RawMessage(data), nil

	case callURL != "":
		config := map[string]any{
			"url":    callURL,
			"method": strings.ToUpper(method),
		}
		if len(headers) > 0 {
			h := make(map[string]string, len(headers))
			for _, kv := range headers {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return nil, fmt.Errorf("invalid header format %q, expected KEY=VALUE", kv)
				}
				h[key] = value
			}
			config["headers"] = h
		}
		return json.Marshal(map[string]any{"type": "API_CALL", "config": config})

	default:
		return nil, errors.New("one of --payload, --payload-file or --url is required")
	}
}

func newJobDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a job and its execution history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Job deleted: %s", args[0]))
			return nil
		},
	}
}

func newJobToggleCmd(clientFn func() *Client, outputFn func() *Output, use string, active bool) *cobra.Command {
	short := "Enable a job"
	if !active {
		short = "Disable a job"
	}

	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := clientFn().SetJobActive(cmd.Context(), args[0], active)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Job %sd: %s", use, job.ID))
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job, "")
			return nil
		},
	}
}

func newJobExecutionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "executions ID",
		Short: "Show recent executions of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			execs, err := clientFn().ListExecutions(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "SCHEDULED", "STATUS", "DURATION", "ATTEMPTS", "LAST_MESSAGE"}
			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = []string{
					e.ID, e.ScheduledTime, e.Status, formatDuration(e.DurationMs),
					strconv.Itoa(attempts(e)), lastMessage(e),
				}
			}

			outputFn().Print(headers, rows, execs, "No executions yet")
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of executions (server default if 0)")

	return cmd
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return strconv.FormatInt(ms, 10) + "ms"
}

// attempts — число записей start в журнале execution.
func attempts(e ExecutionResponse) int {
	n := 0
	for _, entry := range e.LogDetails {
		if entry["type"] == "start" {
			n++
		}
	}
	return n
}

func lastMessage(e ExecutionResponse) string {
	if len(e.LogDetails) == 0 {
		return ""
	}
	msg, _ := e.LogDetails[len(e.LogDetails)-1]["message"].(string)
	if len(msg) > 60 {
		msg = msg[:57] + "..."
	}
	return msg
}
