package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/xaenox/chat-metrics/internal/alerts"
	"github.com/xaenox/chat-metrics/internal/ingest"
	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/pipeline"
	"github.com/xaenox/chat-metrics/internal/storage"
)

type command struct {
	needsTagger bool
	flags       func(fs *pflag.FlagSet)
	run         func(ctx context.Context, r *pipeline.Runner) (any, error)
}

var commands = map[string]*command{}

func init() {
	commands["import"] = sourceCommand(false, func(ctx context.Context, r *pipeline.Runner, src ingest.Source, name string) (any, error) {
		return r.Import(ctx, src, name)
	})
	commands["run"] = sourceCommand(true, func(ctx context.Context, r *pipeline.Runner, src ingest.Source, name string) (any, error) {
		return r.RunAll(ctx, src, name)
	})

	var limit, skip int
	var conversation string
	commands["analyze"] = &command{
		needsTagger: true,
		flags: func(fs *pflag.FlagSet) {
			fs.IntVar(&limit, "limit", 0, "maximum conversations to analyze (0 = all)")
			fs.IntVar(&skip, "skip", 0, "unanalyzed conversations to leave alone")
			fs.StringVar(&conversation, "conversation", "", "analyze a single conversation (id or ticket)")
		},
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			if conversation == "" {
				return r.Analyze(ctx, limit, skip)
			}
			conv, err := r.ResolveConversation(ctx, conversation)
			if err != nil {
				return nil, fmt.Errorf("conversation %s: %w", conversation, err)
			}
			return r.Analyzer().AnalyzeOne(ctx, conv.ID)
		},
	}

	var reanalyzeRef string
	commands["reanalyze"] = &command{
		needsTagger: true,
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&reanalyzeRef, "conversation", "", "conversation id or ticket")
		},
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			if reanalyzeRef == "" {
				return nil, errors.New("--conversation is required")
			}
			conv, err := r.ResolveConversation(ctx, reanalyzeRef)
			if err != nil {
				return nil, fmt.Errorf("conversation %s: %w", reanalyzeRef, err)
			}
			return r.Analyzer().Reanalyze(ctx, conv.ID)
		},
	}

	commands["aggregate"] = &command{
		flags: func(*pflag.FlagSet) {},
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			return r.Aggregate(ctx)
		},
	}

	var status, severity string
	commands["alerts"] = &command{
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&status, "status", string(models.AlertActive), "filter by status (empty for all)")
			fs.StringVar(&severity, "severity", "", "filter by severity")
		},
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			if status != "" && !models.AlertStatus(status).Valid() {
				return nil, fmt.Errorf("unknown status %q", status)
			}
			list, err := r.Store().ListAlerts(ctx, storage.AlertFilter{
				Status:   models.AlertStatus(status),
				Severity: models.Severity(severity),
			})
			if err != nil {
				return nil, err
			}
			alerts.SortByPriority(list)
			return struct {
				Summary alerts.Summary  `json:"summary"`
				Alerts  []*models.Alert `json:"alerts"`
			}{alerts.Summarize(list), list}, nil
		},
	}

	var ackID string
	commands["ack"] = &command{
		flags: func(fs *pflag.FlagSet) { fs.StringVar(&ackID, "id", "", "alert id") },
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			if ackID == "" {
				return nil, errors.New("--id is required")
			}
			return nil, r.Alerts().Acknowledge(ctx, ackID)
		},
	}

	var resolveID string
	commands["resolve"] = &command{
		flags: func(fs *pflag.FlagSet) { fs.StringVar(&resolveID, "id", "", "alert id") },
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			if resolveID == "" {
				return nil, errors.New("--id is required")
			}
			return nil, r.Alerts().Resolve(ctx, resolveID)
		},
	}

	commands["status"] = &command{
		flags: func(*pflag.FlagSet) {},
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			return r.Status(ctx)
		},
	}

	var tickets []string
	commands["delete"] = &command{
		flags: func(fs *pflag.FlagSet) {
			fs.StringSliceVar(&tickets, "tickets", nil, "comma separated ticket ids")
		},
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			deleted, err := r.DeleteTickets(ctx, tickets)
			if err != nil {
				return nil, err
			}
			return map[string]int{"deleted": deleted}, nil
		},
	}

	var confirm bool
	commands["reset"] = &command{
		flags: func(fs *pflag.FlagSet) { fs.BoolVar(&confirm, "yes", false, "confirm wiping every table") },
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			if !confirm {
				return nil, errors.New("refusing to reset without --yes")
			}
			return nil, r.Reset(ctx)
		},
	}
}

type sourceRun func(ctx context.Context, r *pipeline.Runner, src ingest.Source, name string) (any, error)

func sourceCommand(needsTagger bool, run sourceRun) *command {
	var file, encoded, url string
	return &command{
		needsTagger: needsTagger,
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&file, "file", "", "path to a JSON export")
			fs.StringVar(&encoded, "base64", "", "base64 encoded JSON export")
			fs.StringVar(&url, "url", "", "URL of a JSON export")
		},
		run: func(ctx context.Context, r *pipeline.Runner) (any, error) {
			src := ingest.Source{Base64: encoded, URL: url}
			name := url
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return nil, fmt.Errorf("failed to read %s: %w", file, err)
				}
				src.Inline = data
				name = filepath.Base(file)
			case encoded != "":
				name = "base64"
			case url != "":
				name = url[strings.LastIndex(url, "/")+1:]
			}
			return run(ctx, r, src, name)
		},
	}
}
