// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Operation history for yolokit.
//
// Command: history [subcommand]
//
// Subcommands:
//   list (default)     Recent operations, newest first
//     --model-name     Only this model
//     --operation      Only this operation (train, predict, ...)
//     --limit N        At most N runs (default 20)
//   show <id>          One run; a unique id prefix is enough
//   prune              Delete old runs
//     --days N         Older than N days (default 30)
//     --yes            Do not ask for confirmation
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/yolokit/internal/history"
	"github.com/jeranaias/yolokit/internal/util"
)

// HandleHistory handles the "history" command.
func HandleHistory(args Args) error {
	p := NewArgParser(args.Raw)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return NewCommandError("history", "open", cfg.Paths.HistoryDB, err)
	}
	defer store.Close()

	ctx := context.Background()

	switch args.Subcommand {
	case "", "list", "ls":
		limit := 20
		if p.HasFlag("limit") {
			if limit, err = ParseIntWithValidation(p.Flag("limit"), "limit"); err != nil {
				return err
			}
		}
		runs, err := store.List(ctx, history.ListOptions{
			Model:     p.FirstFlag("model-name", "name"),
			Operation: p.Flag("operation"),
			Limit:     limit,
		})
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("history", runs).Print()
		}
		printRuns(runs)
		return nil

	case "show":
		id := p.Positional(1)
		if id == "" {
			return ErrMissingArgument("run id", "yolokit history show 3f2a")
		}
		run, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("history", run).Print()
		}
		printRun(run)
		return nil

	case "prune":
		days := 30
		if p.HasFlag("days") {
			if days, err = ParseIntWithValidation(p.Flag("days"), "days"); err != nil {
				return err
			}
		}
		before := time.Now().AddDate(0, 0, -days)
		ok, err := RequireConfirmation(fmt.Sprintf("delete runs older than %d days", days), nil,
			confirmationFromArgs(args, p))
		if err != nil {
			return err
		}
		if !ok {
			ShowCancellationMessage()
			return nil
		}
		n, err := store.Prune(ctx, before)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("history", map[string]interface{}{
				"pruned": n,
				"before": before.UTC().Format(time.RFC3339),
			}).Print()
		}
		fmt.Printf("Pruned %d runs older than %d days\n", n, days)
		return nil

	default:
		return ErrUnknownSubcommand("history", args.Subcommand, []string{"list", "show", "prune"})
	}
}

func printRuns(runs []*history.Run) {
	if len(runs) == 0 {
		fmt.Println(DimStyle.Render("No runs recorded"))
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took := "-"
		if d := r.Duration(); d > 0 {
			took = formatDurationShort(d)
		}
		rows = append(rows, []string{
			r.ID[:8],
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Operation,
			modelLabel(r.Model),
			string(r.Status),
			took,
			util.Truncate(r.Detail, 40),
		})
	}
	fmt.Print(RenderTable([]string{"ID", "STARTED", "OP", "MODEL", "STATUS", "TOOK", "DETAIL"}, rows))
}

func printRun(r *history.Run) {
	fmt.Println(TitleStyle.Render("Run " + r.ID))
	fmt.Println(RenderKV("Operation", r.Operation))
	fmt.Println(RenderKV("Model", modelLabel(r.Model)))
	fmt.Println(RenderKV("Status", RenderStatus(string(r.Status))))
	fmt.Println(RenderKV("Started", r.StartedAt.Local().Format(time.RFC3339)))
	if r.FinishedAt != nil {
		fmt.Println(RenderKV("Finished", r.FinishedAt.Local().Format(time.RFC3339)))
		fmt.Println(RenderKV("Took", formatDurationShort(r.Duration())))
	}
	if r.Detections > 0 {
		fmt.Println(RenderKV("Detections", fmt.Sprintf("%d", r.Detections)))
	}
	if r.Fingerprint != "" {
		fmt.Println(RenderKV("Weights", r.Fingerprint))
	}
	if r.Detail != "" {
		fmt.Println(RenderKV("Detail", r.Detail))
	}
}

func modelLabel(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}
