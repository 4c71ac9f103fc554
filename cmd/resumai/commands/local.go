package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/documentevaluator/internal/chain"
	"github.com/Lllllllleong/documentevaluator/internal/models"
	"github.com/Lllllllleong/documentevaluator/internal/pages"
	"github.com/Lllllllleong/documentevaluator/internal/prompts"
	"github.com/Lllllllleong/documentevaluator/internal/report"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		file  string
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract text from a document and show how it would be paged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			res, err := a.extractor.Extract(cmd.Context(), data)
			if err != nil {
				return err
			}
			pgs := pages.Split(pages.FromText(res.Text), a.cfg.Pipeline.MaxWords)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kind:   %s (%s)\n", res.Kind, res.MIME)
			fmt.Fprintf(out, "pages:  %d source, %d prompt\n", res.Pages, len(pgs))
			fmt.Fprintf(out, "words:  %d\n", res.Words())
			if !quiet {
				fmt.Fprintf(out, "\n%s\n", res.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document to read (required)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "omit the extracted text")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		file       string
		rubricName string
		rubricFile string
		params     map[string]string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the evaluation pipeline on a local document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rubric, err := a.rubric(rubricName, rubricFile)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			res, err := a.extractor.Extract(cmd.Context(), data)
			if err != nil {
				return err
			}

			result, err := a.run(cmd.Context(), rubric, pages.FromText(res.Text), params)
			if err != nil {
				return err
			}
			rep := report.Parse(result.Text)
			for _, p := range rep.Problems {
				a.logger.Warn("Evaluation output problem", "problem", p)
			}
			return printEvaluation(cmd.OutOrStdout(), result, rep, asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document to evaluate (required)")
	cmd.Flags().StringVar(&rubricName, "rubric", "", "built-in rubric (defaults to the configured one)")
	cmd.Flags().StringVar(&rubricFile, "rubric-file", "", "YAML rubric file, overrides --rubric")
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "rubric parameter as key=value")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSummarizeCmd(a *app) *cobra.Command {
	var (
		file    string
		company string
	)
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarise customer pain points from call transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rubric, err := prompts.Builtin("transcript")
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			calls, err := decodeTranscripts(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			out := cmd.OutOrStdout()
			for i, call := range calls {
				label := call.CallID
				if label == "" {
					label = fmt.Sprintf("call %d", i+1)
				}
				result, err := a.run(cmd.Context(), rubric, pages.FromTranscript(call), map[string]string{"company": company})
				if errors.Is(err, chain.ErrNoPages) {
					a.logger.Warn("Transcript has no speech, skipping", "call", label)
					continue
				}
				if err != nil {
					return fmt.Errorf("%s: %w", label, err)
				}
				fmt.Fprintf(out, "## %s\n\n%s\n\n", label, result.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "transcript export JSON (required)")
	cmd.Flags().StringVar(&company, "company", "", "company the calls were held with (required)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func (a *app) rubric(name, file string) (prompts.Rubric, error) {
	if name == "" && file == "" {
		name, file = a.cfg.Pipeline.Rubric, a.cfg.Pipeline.RubricFile
	}
	return prompts.Resolve(name, file)
}

// run splits units into pages and drives them through one chain run.
func (a *app) run(ctx context.Context, rubric prompts.Rubric, units []pages.Unit, params map[string]string) (chain.Result, error) {
	client, err := a.newClient(ctx)
	if err != nil {
		return chain.Result{}, err
	}
	defer client.Close()

	pgs := pages.Split(units, a.cfg.Pipeline.MaxWords)
	ch := chain.New(client, rubric,
		chain.WithConcurrency(a.cfg.Pipeline.MapConcurrency),
		chain.WithLogger(a.logger),
	)
	result, err := ch.Run(ctx, pgs, params)
	if err != nil {
		return chain.Result{}, err
	}
	if len(result.Degraded) > 0 {
		a.logger.Warn("Some pages produced no output", "pages", result.Degraded)
	}
	return result, nil
}

// decodeTranscripts accepts either an export envelope or a single call.
func decodeTranscripts(r io.Reader) ([]models.CallTranscript, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var export models.TranscriptExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, err
	}
	if len(export.CallTranscripts) > 0 {
		return export.CallTranscripts, nil
	}
	var call models.CallTranscript
	if err := json.Unmarshal(data, &call); err != nil {
		return nil, err
	}
	if len(call.Transcript) == 0 {
		return nil, errors.New("no call transcripts found")
	}
	return []models.CallTranscript{call}, nil
}

type evaluationOutput struct {
	Evaluation string        `json:"evaluation"`
	Pages      int           `json:"pages"`
	Degraded   []int         `json:"degradedPages,omitempty"`
	Score      *float64      `json:"score,omitempty"`
	Report     report.Report `json:"report"`
}

func printEvaluation(w io.Writer, result chain.Result, rep report.Report, asJSON bool) error {
	out := evaluationOutput{
		Evaluation: result.Text,
		Pages:      len(result.MapOutputs),
		Degraded:   result.Degraded,
		Report:     rep,
	}
	if score, ok := rep.Score(); ok {
		out.Score = &score
	}

	if asJSON {
		return printJSON(w, out)
	}

	fmt.Fprintln(w, strings.TrimSpace(result.Text))
	if out.Score != nil {
		fmt.Fprintf(w, "\nScore: %.1f\n", *out.Score)
	}
	return nil
}
