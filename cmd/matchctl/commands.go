package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/questions"
	"github.com/ZanzyTHEbar/blind-match/internal/security"
)

const defaultDataDir = "./data"

func newApp() *cli.App {
	return &cli.App{
		Name:  "matchctl",
		Usage: "offline tools for blind-match scoring",
		Commands: []*cli.Command{
			scoreCommand(),
			parseQuestionsCommand(),
			policyCommand(),
			hashPasswordCommand(),
		},
	}
}

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "score two survey files without AI",
		ArgsUsage: "<survey-a.json> <survey-b.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Value: string(analysis.ModeStandard), Usage: "standard or opposites"},
			&cli.StringFlag{Name: "model", Value: string(analysis.ModelPair), Usage: "pair or legacy"},
			&cli.StringFlag{Name: "policy", Value: "default", Usage: "policy name"},
			&cli.StringFlag{Name: "data-dir", Value: defaultDataDir, EnvVars: []string{"BLINDMATCH_DATABASE_DATA_DIR"}},
			&cli.IntFlag{Name: "event", Value: 1},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("score needs exactly two survey files", 2)
			}
			a, err := readTraits(c.Args().Get(0), 1)
			if err != nil {
				return err
			}
			b, err := readTraits(c.Args().Get(1), 2)
			if err != nil {
				return err
			}

			policy, err := analysis.NewPolicyStore(c.String("data-dir")).Load(c.String("policy"))
			if err != nil {
				return err
			}
			opts := analysis.Options{Mode: analysis.Mode(c.String("mode")), Model: analysis.Model(c.String("model"))}
			res, err := analysis.NewScorer(policy, nil, nil).Score(context.Background(), c.Int("event"), a, b, opts)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			return writeJSON(c.App.Writer, res)
		},
	}
}

// readTraits loads a survey file. The file may hold the survey object alone
// or a participant record with a survey_data field.
func readTraits(path string, number int) (analysis.Traits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return analysis.Traits{}, fmt.Errorf("failed to read survey: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return analysis.Traits{}, fmt.Errorf("%s: invalid JSON: %w", path, err)
	}
	if n, ok := doc["assigned_number"].(float64); ok && n > 0 {
		number = int(n)
	}
	if inner, ok := doc["survey_data"].(map[string]any); ok {
		doc = inner
	}
	return analysis.ExtractTraits(number, doc)
}

func parseQuestionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse-questions",
		Usage:     "normalize a model reply into the five-question set",
		ArgsUsage: "[reply-file]",
		Action: func(c *cli.Context) error {
			var r io.Reader = c.App.Reader
			if path := c.Args().First(); path != "" && path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open reply: %w", err)
				}
				defer f.Close()
				r = f
			}
			reply, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("failed to read reply: %w", err)
			}

			source := questions.SourceLLM
			parsed, ok := questions.ParseStructured(string(reply))
			if !ok {
				parsed, source = questions.ParseHeuristic(string(reply)), questions.SourceHeuristic
			}
			if len(parsed) == 0 {
				source = questions.SourceFallback
			}
			return writeJSON(c.App.Writer, map[string]any{
				"source":    source,
				"questions": questions.Normalize(parsed),
			})
		},
	}
}

func policyCommand() *cli.Command {
	dataDir := &cli.StringFlag{Name: "data-dir", Value: defaultDataDir, EnvVars: []string{"BLINDMATCH_DATABASE_DATA_DIR"}}
	name := &cli.StringFlag{Name: "name", Value: "default"}

	return &cli.Command{
		Name:  "policy",
		Usage: "manage gate policies",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "write the default policy to the data directory",
				Flags: []cli.Flag{dataDir, name, &cli.BoolFlag{Name: "force"}},
				Action: func(c *cli.Context) error {
					store := analysis.NewPolicyStore(c.String("data-dir"))
					if !c.Bool("force") {
						if _, err := os.Stat(store.Path(c.String("name"))); err == nil {
							return cli.Exit(fmt.Sprintf("policy %q already exists, use --force", c.String("name")), 1)
						}
					}
					if err := store.Save(c.String("name"), analysis.DefaultPolicy()); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, store.Path(c.String("name")))
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "print the effective policy",
				Flags: []cli.Flag{dataDir, name},
				Action: func(c *cli.Context) error {
					policy, err := analysis.NewPolicyStore(c.String("data-dir")).Load(c.String("name"))
					if err != nil {
						return err
					}
					return writeJSON(c.App.Writer, policy)
				},
			},
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "print a bcrypt hash for BLINDMATCH_ADMIN_PASSWORD_HASH",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "password", EnvVars: []string{"BLINDMATCH_ADMIN_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			password := c.String("password")
			if password == "" {
				line, err := io.ReadAll(io.LimitReader(c.App.Reader, 1024))
				if err != nil {
					return err
				}
				password = strings.TrimSpace(string(line))
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			fmt.Fprintln(c.App.Writer, string(hash))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
