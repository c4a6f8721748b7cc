package cli

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tchat/cli/session"
	"tchat/internal/api"
	"tchat/internal/auth"
	"tchat/internal/chat"
	"tchat/internal/configuration"
	"tchat/internal/history"
	"tchat/internal/push"
	"tchat/internal/store"
	"tchat/internal/stream"
)

const historyFilepath = "~/.config/tchat/history.json"

// ErrNotLoggedIn rejects commands that need an authenticated user.
var ErrNotLoggedIn = errors.New("not logged in, run `tchat login` first")

// programHolder hands the tea.Program reference to goroutines that outlive
// its construction.
type programHolder struct {
	mu      sync.Mutex
	program *tea.Program
}

func (h *programHolder) set(p *tea.Program) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.program = p
}

func (h *programHolder) send(msg tea.Msg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.program != nil {
		h.program.Send(msg)
	}
}

// NewChatCmd instantiates and returns the chat command.
func NewChatCmd(config *configuration.Config) *cobra.Command {
	var opts struct {
		ChatID            string
		Continue          bool
		Model             string
		Temperature       float64
		TopP              float64
		OutputLength      int
		RepetitionPenalty float64
	}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			authn := auth.Load(config.CredentialsFile)
			if !authn.LoggedIn() {
				return ErrNotLoggedIn
			}

			s := store.New()
			holder := &programHolder{}
			client := api.NewClient(
				config.APIURL,
				time.Duration(config.RequestTimeout)*time.Second,
				authn.Token,
				func() { holder.send(session.EngineErrorMsg{Err: ErrNotLoggedIn}) },
			)
			streams := stream.NewManager(s, client, func(err error) {
				holder.send(session.EngineErrorMsg{Err: err})
			})
			controller := chat.NewController(s, client, streams, authn.UserID, config.Parameters)
			if err := controller.SetParameters(api.Parameters{
				Model:             opts.Model,
				Temperature:       opts.Temperature,
				TopP:              opts.TopP,
				OutputLength:      opts.OutputLength,
				RepetitionPenalty: opts.RepetitionPenalty,
			}); err != nil {
				return err
			}

			// Resolve the conversation to open.
			if err := controller.FetchHistories(ctx); err != nil {
				return errors.Wrap(err, "fetching chat history")
			}
			switch {
			case opts.ChatID != "":
				controller.SetActiveChat(opts.ChatID)
			case opts.Continue:
				histories := s.Histories()
				if len(histories) == 0 {
					return errors.New("no chat to continue")
				}
				controller.SetActiveChat(histories[0].ChatID)
			}
			if chatID := controller.ActiveChat(); chatID != store.NewChatID {
				if err := controller.FetchChat(ctx, chatID); err != nil {
					return errors.Wrap(err, "fetching chat")
				}
			}

			historyPath, err := configuration.ExpandPath(historyFilepath)
			if err != nil {
				return errors.Wrap(err, "expanding history path")
			}

			m, err := session.New(ctx, s, controller, history.New(historyPath))
			if err != nil {
				return err
			}
			p := tea.NewProgram(
				m,
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithMouseCellMotion(),
				tea.WithReportFocus(),
			)
			holder.set(p)

			adapter := push.New(config.PushURL, s, controller.ActiveChat, authn.Token)
			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				if err := adapter.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				defer cancel()
				defer controller.StopStream()
				if _, err := p.Run(); err != nil {
					return errors.Wrap(err, "running chat")
				}
				return nil
			})
			return group.Wait()
		},
	}

	cmd.Flags().StringVar(&opts.ChatID, "id", "", "Open a specific chat")
	cmd.Flags().BoolVarP(&opts.Continue, "continue", "c", false, "Continue the most recent chat")
	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model to generate with")
	cmd.Flags().Float64Var(&opts.Temperature, "temperature", 0, "Sampling temperature (0.0-1.0)")
	cmd.Flags().Float64Var(&opts.TopP, "top-p", 0, "Nucleus sampling mass (0.0-1.0)")
	cmd.Flags().IntVar(&opts.OutputLength, "output-length", 0, "Maximum tokens to generate")
	cmd.Flags().Float64Var(&opts.RepetitionPenalty, "repetition-penalty", 0, "Repetition penalty (1.0-2.0)")
	return cmd
}
