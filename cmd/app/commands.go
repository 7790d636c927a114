package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/repository"
	"conductor-chat/internal/infra/sched"
	"conductor-chat/internal/usecase"
)

func withApp(flags *rootFlags, run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context(), flags)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

func sendCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			out := cmd.OutOrStdout()
			_, err := exchange(cmd.Context(), a.chat, newPrinter(out), strings.Join(args, " "))
			return err
		}),
	}
}

func chatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			return a.runServices(cmd.Context(), func(ctx context.Context) error {
				return repl(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		}),
	}
}

func healthCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the gateway is reachable",
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.chat.CheckConnection(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.texts.T("cli.health_ok", a.cfg.Gateway.BaseURL))
			return nil
		}),
	}
}

func historyCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation",
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			return printHistory(cmd.Context(), a, cmd.OutOrStdout(), limit)
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of messages to show")
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored conversation",
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.chat.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.texts.T("cli.history_cleared"))
			return nil
		}),
	})
	cmd.AddCommand(pruneCmd(flags))
	return cmd
}

func pruneCmd(flags *rootFlags) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stored messages older than the retention window",
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			maxAge := olderThan
			if maxAge <= 0 {
				maxAge = a.cfg.History.Retention
			}
			if maxAge <= 0 {
				return errors.New("no retention window: set history.retention or --older-than")
			}
			store, ok := a.store.(repository.HistoryPruner)
			if !ok {
				return fmt.Errorf("history backend %q expires messages on its own", a.cfg.History.Backend)
			}
			n, err := sched.NewRetentionWorker(0, maxAge, store, a.log).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.texts.T("cli.history_pruned", n))
			return nil
		}),
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff (defaults to history.retention)")
	return cmd
}

// exchange sends text and renders the answer. A failed exchange has already
// been printed, so only context errors are returned.
func exchange(ctx context.Context, chat usecase.ChatUseCase, p *printer, text string) (*model.ChatMessage, error) {
	msg, err := chat.Send(ctx, text, p.Update)
	p.Finish(msg)
	if ctx.Err() != nil {
		return msg, ctx.Err()
	}
	if err != nil && msg == nil {
		return nil, err
	}
	return msg, nil
}

func repl(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, a.texts.T("cli.welcome", a.cfg.Gateway.BaseURL))
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/exit", "/sair", "/quit":
			return nil
		case "/history", "/historico":
			if err := printHistory(ctx, a, out, 20); err != nil {
				a.log.Warn().Err(err).Msg("history unavailable")
			}
			continue
		case "/clear", "/limpar":
			if err := a.chat.ClearHistory(ctx); err != nil {
				a.log.Warn().Err(err).Msg("clear history failed")
				continue
			}
			fmt.Fprintln(out, a.texts.T("cli.history_cleared"))
			continue
		}

		if _, err := exchange(ctx, a.chat, newPrinter(out), line); err != nil {
			return nil
		}
	}
}

func printHistory(ctx context.Context, a *app, out io.Writer, limit int) error {
	msgs, err := a.chat.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(out, a.texts.T("cli.history_empty"))
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintln(out, formatHistoryLine(m))
	}
	return nil
}
