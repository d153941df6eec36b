package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mhpenta/imagestudio"
	"github.com/mhpenta/imagestudio/provider/gemini"
	"github.com/mhpenta/imagestudio/server"
)

const apiKeyEnv = "GEMINI_API_KEY"

var errMissingAPIKey = fmt.Errorf("an API key is required: pass --api-key or set %s", apiKeyEnv)

// providerFactory creates the image backend. Tests replace it with a mock.
type providerFactory func(ctx context.Context, apiKey string) (imagestudio.ImageGenerator, error)

func geminiProvider(ctx context.Context, apiKey string) (imagestudio.ImageGenerator, error) {
	return gemini.NewWithAPIKey(ctx, apiKey)
}

type globalOptions struct {
	apiKey      string
	model       string
	aspectRatio string
	output      string
	verbose     bool
	wait        bool
}

type app struct {
	opts        globalOptions
	newProvider providerFactory
	logger      *slog.Logger
}

func NewCLI() *cobra.Command {
	return newCLI(geminiProvider)
}

func newCLI(newProvider providerFactory) *cobra.Command {
	a := &app{newProvider: newProvider}

	rootCmd := &cobra.Command{
		Use:   "imagestudio",
		Short: "Create and edit images with generative models",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.opts.apiKey, "api-key", "", "API key for the image model (default $"+apiKeyEnv+")")
	flags.StringVarP(&a.opts.model, "model", "m", string(imagestudio.ModelDefault), "Model to generate with")
	flags.StringVar(&a.opts.aspectRatio, "aspect-ratio", "", "Aspect ratio of the output, e.g. 16:9 (default: model decides)")
	flags.StringVarP(&a.opts.output, "output", "o", ".", "Directory to save generated images in")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&a.opts.wait, "wait", false, "Wait instead of failing when rate limited")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		a.createCmd(),
		a.editCmd(),
		a.serveCmd(),
		a.modelsCmd(),
	)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if a.opts.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if a.opts.apiKey == "" {
		a.opts.apiKey = os.Getenv(apiKeyEnv)
	}

	ratio := imagestudio.AspectRatio(a.opts.aspectRatio)
	if ratio != imagestudio.AspectRatioAuto && !slices.Contains(imagestudio.AspectRatios, ratio) {
		return fmt.Errorf("unsupported aspect ratio %q", a.opts.aspectRatio)
	}
	return nil
}

func (a *app) createCmd() *cobra.Command {
	var function string

	cmd := &cobra.Command{
		Use:   "create PROMPT",
		Short: "Generate a new image from a text prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session := imagestudio.NewSession()
			session.SetPrompt(strings.Join(args, " "))
			if err := session.SetCreateFunction(imagestudio.CreateFunction(function)); err != nil {
				return err
			}
			return a.run(cmd, session)
		},
	}
	cmd.Flags().StringVarP(&function, "function", "f", string(imagestudio.CreateFree),
		"Create function: "+joinFunctions(imagestudio.CreateFunctions))
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var function string
	var images []string

	cmd := &cobra.Command{
		Use:   "edit --image PATH [--image PATH] PROMPT",
		Short: "Edit one image, or merge two, following a text instruction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(images) > imagestudio.MaxInputImages {
				return fmt.Errorf("%w: at most %d --image flags", imagestudio.ErrTooManyImages, imagestudio.MaxInputImages)
			}

			session := imagestudio.NewSession()
			if err := session.SetMode(imagestudio.ModeEdit); err != nil {
				return err
			}
			if err := session.SetEditFunction(imagestudio.EditFunction(function)); err != nil {
				return err
			}
			session.SetPrompt(strings.Join(args, " "))

			setters := []func(*imagestudio.ImageAttachment){session.SetImage1, session.SetImage2}
			for i, path := range images {
				attachment, err := imagestudio.LoadImageAttachment(path)
				if err != nil {
					return err
				}
				setters[i](attachment)
			}
			return a.run(cmd, session)
		},
	}
	cmd.Flags().StringVarP(&function, "function", "f", string(imagestudio.EditAddRemove),
		"Edit function: "+joinFunctions(imagestudio.EditFunctions))
	cmd.Flags().StringArrayVarP(&images, "image", "i", nil, "Image to edit; pass twice for compose")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the studio HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer manager.Close()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}

			srv := server.New(manager,
				server.WithLogger(a.logger),
				server.WithAllowedOrigins(origins...),
			)
			return srv.Serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Address to listen on")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "Allowed CORS origin (default: any)")
	return cmd
}

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer manager.Close()

			printModels(cmd.OutOrStdout(), manager.Models(), manager.DefaultModel())
			return nil
		},
	}
}

func (a *app) manager(ctx context.Context) (*imagestudio.Manager, error) {
	if a.opts.apiKey == "" {
		return nil, errMissingAPIKey
	}

	provider, err := a.newProvider(ctx, a.opts.apiKey)
	if err != nil {
		return nil, err
	}

	config := imagestudio.DefaultConfig()
	config.AspectRatio = imagestudio.AspectRatio(a.opts.aspectRatio)
	config.WaitOnRateLimit = a.opts.wait
	config.MaxWaitDuration = 2 * time.Minute

	manager := imagestudio.NewManager(provider,
		imagestudio.WithLogger(a.logger),
		imagestudio.WithDefaultModel(imagestudio.Model(a.opts.model)),
		imagestudio.WithGenerateConfig(config),
	)
	if _, ok := manager.GetModelInfo(imagestudio.Model(a.opts.model)); !ok {
		manager.Close()
		return nil, fmt.Errorf("%w: %s", imagestudio.ErrModelNotRegistered, a.opts.model)
	}
	return manager, nil
}

// run submits the session once and saves the generated image.
func (a *app) run(cmd *cobra.Command, session *imagestudio.Session) error {
	ctx := cmd.Context()

	manager, err := a.manager(ctx)
	if err != nil {
		return err
	}
	defer manager.Close()

	submitter := imagestudio.NewSubmitter(manager, imagestudio.WithSubmitLogger(a.logger))
	outcome := submitter.Submit(ctx, session)
	if outcome.Kind != imagestudio.OutcomeSuccess {
		return errors.New(outcome.Message)
	}

	name := fmt.Sprintf("%s-%s-%s", session.Mode(), time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	result, err := imagestudio.SaveImageRef(ctx, imagestudio.NewFileStorage(a.opts.output), outcome.ImageRef, name)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.URL)
	return nil
}

func printModels(w io.Writer, models []imagestudio.ModelInfo, defaultModel imagestudio.Model) {
	slices.SortFunc(models, func(a, b imagestudio.ModelInfo) int {
		return strings.Compare(a.Name, b.Name)
	})

	var data [][]string
	for _, m := range models {
		name := m.Name
		if imagestudio.Model(m.Name) == defaultModel {
			name += " (default)"
		}
		sizes := make([]string, 0, len(m.SupportedSizes))
		for _, s := range m.SupportedSizes {
			sizes = append(sizes, s.String())
		}
		data = append(data, []string{
			name,
			m.APIModelName,
			strconv.Itoa(m.Capabilities.MaxInputImages),
			strings.Join(sizes, ","),
			m.Description,
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "API MODEL", "MAX IMAGES", "SIZES", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func joinFunctions[F ~string](fns []F) string {
	names := make([]string, len(fns))
	for i, fn := range fns {
		names[i] = string(fn)
	}
	return strings.Join(names, ", ")
}
