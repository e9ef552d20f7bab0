package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/orchestrator"
	"github.com/ahrav/go-fightlens/internal/worker"
)

type analyzeOptions struct {
	image         string
	handle        string
	mimeType      string
	subject       string
	discriminator string
	ruleSet       string
	priorResult   string
	focus         string
	output        string
	workflow      bool
}

func newAnalyzeCommand() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one frame and print the consolidated report as JSON",
		Long: `Analyze one frame supplied either as an image file (--image) or as a
previously uploaded media handle (--handle). Every enabled specialist runs
concurrently; the report is printed even when consolidation falls back to
the local merge. The command fails only when every specialist fails.

With --workflow the request is submitted to the Temporal task queue and
executed by a running 'fightlens worker'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.image, "image", "", "path to a JPEG, PNG, WebP or GIF frame")
	f.StringVar(&opts.handle, "handle", "", "provider media handle (file id or URI) instead of --image")
	f.StringVar(&opts.mimeType, "mime-type", "", "MIME type of --image (detected when empty)")
	f.StringVar(&opts.subject, "subject", "", "name of the athlete to analyze")
	f.StringVar(&opts.discriminator, "discriminator", "", "how to tell the athlete apart, e.g. \"blue gi\"")
	f.StringVar(&opts.ruleSet, "rule-set", "", "rule set id (ibjjf, adcc, submission_only)")
	f.StringVar(&opts.priorResult, "prior-result", "", "known match outcome")
	f.StringVar(&opts.focus, "focus", "", "what the report should focus on")
	f.StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")
	f.BoolVar(&opts.workflow, "workflow", false, "run through the Temporal workflow")
	f.StringSlice("agents", nil, "specialists to run (default: all)")
	_ = cmd.MarkFlagRequired("subject")
	cmd.MarkFlagsMutuallyExclusive("image", "handle")
	cmd.MarkFlagsOneRequired("image", "handle")

	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions) error {
	cfg, logger, err := loadConfig(cmd, map[string]string{"agents.enabled": "agents"})
	if err != nil {
		return err
	}

	frame, err := opts.frame()
	if err != nil {
		return err
	}
	req := domain.NewAnalysisRequest(frame, domain.AnalysisContext{
		SubjectName:   opts.subject,
		Discriminator: opts.discriminator,
		RuleSet:       opts.ruleSet,
		PriorResult:   opts.priorResult,
		FocusAreas:    opts.focus,
	})
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out *domain.ConsolidatedAnalysis
	if opts.workflow {
		c, err := worker.Dial(cfg.Temporal, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		out, err = worker.RunAnalysis(ctx, c, cfg.Temporal.TaskQueue, req, cfg.Agents.Enabled)
		if err != nil {
			return err
		}
	} else {
		comps, err := worker.Initialize(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := comps.Close(); cerr != nil {
				logger.Warn("shutdown failed", "error", cerr)
			}
		}()

		out, err = comps.Orchestrator.Orchestrate(ctx, req)
		if err != nil {
			if errors.Is(err, orchestrator.ErrAllAgentsFailed) {
				return fmt.Errorf("analysis %s produced no usable result: %w", req.ID, err)
			}
			return err
		}
	}

	return writeReport(cmd, opts.output, out)
}

func (o *analyzeOptions) frame() (domain.Frame, error) {
	if o.handle != "" {
		return domain.Frame{Handle: o.handle}, nil
	}

	data, err := os.ReadFile(o.image)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("reading image: %w", err)
	}
	return domain.Frame{Data: data, MIMEType: detectMIME(o.mimeType, o.image, data)}, nil
}

// detectMIME prefers an explicit type, then the file extension, then
// content sniffing.
func detectMIME(explicit, path string, data []byte) string {
	if explicit != "" {
		return explicit
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return http.DetectContentType(data)
}

func writeReport(cmd *cobra.Command, path string, out *domain.ConsolidatedAnalysis) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
