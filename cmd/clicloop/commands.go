package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/clicloop/internal/client"
	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/service"
	"github.com/clicloop/internal/session"
	"github.com/clicloop/internal/types"
	"github.com/spf13/cobra"
)

type options struct {
	apiURL  string
	token   string
	timeout time.Duration
	verbose bool
}

// env holds what every subcommand needs once the root flags are parsed
type env struct {
	store    *session.Store
	client   *client.Client
	resolver *session.ProfileResolver
	out      io.Writer
	errOut   io.Writer
}

func (e *env) close() {
	if e.resolver != nil {
		e.resolver.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
}

// newRootCmd builds the command tree. The returned func releases the session
// and must be called after Execute, whether it failed or not.
func newRootCmd(out, errOut io.Writer) (*cobra.Command, func()) {
	opts := &options{}
	e := &env{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "clicloop",
		Short:         "ClicLoop marketing assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.open(opts)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("CLICLOOP_API_URL", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CLICLOOP_TOKEN"), "access token (default $CLICLOOP_TOKEN)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "request timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(
		newContentCmd(e),
		newPromptCmd(e),
		newCampaignCmd(e),
		newChatCmd(e),
		newProfileCmd(e),
		newBillingCmd(e),
		newExportCmd(e),
		newDeleteAccountCmd(e),
	)

	return root, e.close
}

// open signs in with the token and starts resolving the profile in the background
func (e *env) open(opts *options) error {
	if opts.token == "" {
		return errors.New("no access token: pass --token or set CLICLOOP_TOKEN")
	}

	sess, err := session.FromToken(opts.token)
	if err != nil {
		return err
	}
	if sess.Expired(time.Now()) {
		return errors.New("access token has expired; sign in again")
	}

	level := logging.LevelWarn
	if opts.verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLoggerWithOutput(level, logging.FormatText, e.errOut)

	e.store = session.NewStore()
	e.client = client.New(client.Config{BaseURL: opts.apiURL, Timeout: opts.timeout}, e.store)
	e.resolver = session.NewProfileResolver(e.store, e.client.ProfileFor, opts.timeout, logger)
	e.store.SetSession(sess)

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// runTool generates with the AI proxy and saves the history row
func (e *env) runTool(ctx context.Context, kind types.ToolKind, prompt string, data service.ToolData) error {
	res, err := client.NewToolRunner(e.client, e.client).Run(ctx, kind, prompt, data)
	if err != nil {
		return describeError(err)
	}

	fmt.Fprintln(e.out, res.Text)
	fmt.Fprintf(e.errOut, "tokens: %d\n", res.Usage.TotalTokens)
	if !res.Saved {
		fmt.Fprintf(e.errOut, "generated but not saved to history: %v\n", res.SaveErr)
	}
	return nil
}

// describeError turns validation responses into one line per field
func describeError(err error) error {
	var (
		message    string
		violations []types.FieldViolation
	)

	var apiErr *client.APIError
	var localErr *apperrors.CategorizedError
	switch {
	case errors.As(err, &apiErr):
		message, violations = apiErr.Message, apiErr.Violations()
	case errors.As(err, &localErr):
		message = localErr.Message
		violations, _ = localErr.Details["fields"].([]types.FieldViolation)
	}
	if len(violations) == 0 {
		return err
	}

	lines := make([]string, 0, len(violations))
	for _, v := range violations {
		lines = append(lines, fmt.Sprintf("  %s: %s", v.Field, v.Message))
	}
	return fmt.Errorf("%s\n%s", message, strings.Join(lines, "\n"))
}

func promptArg(args []string, fallback string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	return fallback
}

func newContentCmd(e *env) *cobra.Command {
	var d service.ContentData

	cmd := &cobra.Command{
		Use:   "content [prompt]",
		Short: "Generate social media content ideas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.Descricao == "" || d.Formato == "" {
				return errors.New("--descricao and --formato are required")
			}
			prompt := promptArg(args, fmt.Sprintf("Gere conteúdo para %s no formato %s", d.Descricao, d.Formato))
			return e.runTool(cmd.Context(), types.ToolContent, prompt, d)
		},
	}

	cmd.Flags().StringVar(&d.Nicho, "nicho", "", "business niche")
	cmd.Flags().StringVar(&d.Objetivo, "objetivo", "", "content objective")
	cmd.Flags().StringVar(&d.Descricao, "descricao", "", "what the content is about")
	cmd.Flags().StringVar(&d.Formato, "formato", "", "post, reels, stories, carrossel...")
	return cmd
}

func newPromptCmd(e *env) *cobra.Command {
	var d service.PromptData

	cmd := &cobra.Command{
		Use:   "prompt [prompt]",
		Short: "Build a prompt for another AI tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.Nicho == "" || d.Objetivo == "" || d.AIType == "" || d.Briefing == "" {
				return errors.New("--nicho, --objetivo, --ai-type and --briefing are required")
			}
			prompt := promptArg(args, "Crie um prompt otimizado para "+d.AIType)
			return e.runTool(cmd.Context(), types.ToolPrompt, prompt, d)
		},
	}

	cmd.Flags().StringVar(&d.Nicho, "nicho", "", "business niche")
	cmd.Flags().StringVar(&d.Objetivo, "objetivo", "", "what the prompt should achieve")
	cmd.Flags().StringVar(&d.AIType, "ai-type", "", "target AI (ChatGPT, Midjourney...)")
	cmd.Flags().StringVar(&d.Briefing, "briefing", "", "briefing")
	return cmd
}

func newCampaignCmd(e *env) *cobra.Command {
	var d service.CampaignData

	cmd := &cobra.Command{
		Use:   "campaign [prompt]",
		Short: "Analyze an ad campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.PublicoAlvo == "" || d.Objetivo == "" || d.TituloAnuncio == "" || d.TextoAnuncio == "" || !cmd.Flags().Changed("investimento") {
				return errors.New("--publico, --objetivo, --titulo, --texto and --investimento are required")
			}
			prompt := promptArg(args, "Analise esta campanha")
			return e.runTool(cmd.Context(), types.ToolCampaign, prompt, d)
		},
	}

	f := cmd.Flags()
	f.StringVar(&d.Objetivo, "objetivo", "", "campaign objective")
	f.StringVar(&d.PublicoAlvo, "publico", "", "target audience")
	f.StringVar(&d.TituloAnuncio, "titulo", "", "ad title")
	f.StringVar(&d.TextoAnuncio, "texto", "", "ad text")
	f.StringVar(&d.LandingURL, "landing-url", "", "landing page URL")
	f.Float64Var(&d.InvestimentoTotal, "investimento", 0, "total spend (R$)")
	f.Float64Var(&d.Alcance, "alcance", 0, "reach")
	f.Float64Var(&d.Cliques, "cliques", 0, "clicks")
	f.Float64Var(&d.CTR, "ctr", 0, "click-through rate (%)")
	f.Float64Var(&d.CPM, "cpm", 0, "cost per thousand impressions")
	f.Float64Var(&d.Frequencia, "frequencia", 0, "frequency")
	f.Float64Var(&d.TaxaConversao, "taxa-conversao", 0, "conversion rate (%)")
	f.Float64Var(&d.CustoConversao, "custo-conversao", 0, "cost per conversion")
	return cmd
}

func newChatCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the marketing assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runTool(cmd.Context(), types.ToolChat, strings.Join(args, " "), nil)
		},
	}
}

func newProfileCmd(e *env) *cobra.Command {
	var (
		name  string
		niche string
		help  string
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("name") {
				upd := models.ProfileUpdate{Name: name}
				if cmd.Flags().Changed("niche") {
					upd.Niche = &niche
				}
				if cmd.Flags().Changed("help-description") {
					upd.HelpDescription = &help
				}
				if _, err := e.client.UpdateProfile(cmd.Context(), upd); err != nil {
					return describeError(err)
				}
			} else {
				e.resolver.Wait()
			}

			snap := e.store.Snapshot()
			if snap.Profile == nil {
				p, err := e.client.EnsureProfile(cmd.Context())
				if err != nil {
					return describeError(err)
				}
				e.store.UpdateProfile(p)
				snap = e.store.Snapshot()
			}
			return printJSON(e.out, snap.Profile)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&niche, "niche", "", "business niche")
	cmd.Flags().StringVar(&help, "help-description", "", "what you need help with")
	return cmd
}

func newBillingCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "billing",
		Short: "Show your plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := e.client.Billing(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(e.out, b)
		},
	}
}

func newExportCmd(e *env) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download a copy of all your data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, filename, err := e.client.Export(cmd.Context())
			if err != nil {
				return err
			}

			if outPath == "-" {
				_, err := e.out.Write(data)
				return err
			}
			if outPath == "" {
				outPath = filename
			}
			if outPath == "" {
				outPath = service.ExportFilename(time.Now())
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintf(e.errOut, "saved %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file, - for stdout (default: server-suggested name)")
	return cmd
}

func newDeleteAccountCmd(e *env) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Permanently delete your account and all data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return errors.New("this cannot be undone; pass --yes to confirm")
			}
			if err := e.client.DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(e.errOut, "account deleted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
