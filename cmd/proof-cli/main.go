package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davidahmann/proofofchoice/internal/audit"
	"github.com/davidahmann/proofofchoice/internal/decisions"
	"github.com/davidahmann/proofofchoice/internal/policy"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args[1:], os.Stdout, os.Stderr))
}

var exitFn = os.Exit

// usageError marks failures caused by how the command was invoked.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

// errCheckFailed reports a completed check that did not pass. Its output is already printed.
var errCheckFailed = errors.New("check failed")

type clientFlags struct {
	addr  string
	token string
}

func (f *clientFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", envOrDefault("PROOF_ADDR", defaultAddr), "API address")
	cmd.Flags().StringVar(&f.token, "token", envOrDefault("PROOF_TOKEN", os.Getenv("PROOF_DEV_TOKEN")), "bearer token")
}

func (f *clientFlags) get(path string) ([]byte, int, error) {
	return httpGet(http.DefaultClient, strings.TrimRight(f.addr, "/")+path, f.token)
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	root := newRootCmd()
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	var usage usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		fmt.Fprintln(stderr, err.Error())
		fmt.Fprint(stderr, root.UsageString())
		return 2
	case errors.Is(err, errCheckFailed):
		return 1
	default:
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
}

func exactlyOne(what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return usageError{msg: cmd.Name() + " requires <" + what + ">"}
		}
		return nil
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "proof",
		Short:         "Inspect and export decision proofs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return usageError{msg: "missing command"}
		},
	}
	root.AddCommand(newVerifyCmd(), newExportCmd(), newAuditCmd(), newPolicyCmd())
	return root
}

func newVerifyCmd() *cobra.Command {
	var flags clientFlags
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "verify <decision_id>",
		Short: "Verify a decision's signature and audit chain",
		Args:  exactlyOne("decision_id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			out := cmd.OutOrStdout()

			chainBody, status, err := flags.get("/v1/decisions/" + id + "/audit/verify")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("verify failed: %s", strings.TrimSpace(string(chainBody)))
			}
			var chain audit.VerifyResult
			if err := json.Unmarshal(chainBody, &chain); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}

			sigBody, status, err := flags.get("/v1/decisions/" + id + "/signature/verify")
			if err != nil {
				return err
			}
			var sig *decisions.SignatureCheck
			switch status {
			case http.StatusOK:
				sig = &decisions.SignatureCheck{}
				if err := json.Unmarshal(sigBody, sig); err != nil {
					return fmt.Errorf("invalid response: %w", err)
				}
			case http.StatusNotFound:
			default:
				return fmt.Errorf("verify failed: %s", strings.TrimSpace(string(sigBody)))
			}

			if jsonOut {
				payload, err := json.Marshal(map[string]any{"chain": chain, "signature": sig})
				if err != nil {
					return err
				}
				_, _ = out.Write(append(payload, '\n'))
			} else {
				if chain.Valid {
					fmt.Fprintf(out, "chain valid=true entries=%d head=%s\n", chain.Entries, chain.Head)
				} else {
					fmt.Fprintf(out, "chain valid=false seq=%d error=%s\n", chain.ErrorSeq, chain.Error)
				}
				switch {
				case sig == nil:
					fmt.Fprintln(out, "signature none")
				case sig.Valid:
					fmt.Fprintf(out, "signature valid=true key_id=%s option_id=%s version=%d\n", sig.KeyID, sig.OptionID, sig.Version)
				default:
					fmt.Fprintf(out, "signature valid=false key_id=%s error=%s\n", sig.KeyID, sig.Error)
				}
			}

			if !chain.Valid || (sig != nil && !sig.Valid) {
				return errCheckFailed
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON instead of text")
	return cmd
}

func newExportCmd() *cobra.Command {
	var flags clientFlags
	var format, outPath string
	cmd := &cobra.Command{
		Use:   "export <decision_id>",
		Short: "Download a proof pack (zip) or summary (pdf)",
		Args:  exactlyOne("decision_id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if format != "zip" && format != "pdf" {
				return usageError{msg: "format must be zip or pdf"}
			}
			if outPath == "" {
				outPath = "proof-" + id + "." + format
			}

			body, status, err := flags.get("/v1/decisions/" + id + "/export." + format)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("export failed: %s", strings.TrimSpace(string(body)))
			}

			if dir := filepath.Dir(outPath); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("output dir: %w", err)
				}
			}
			if err := os.WriteFile(outPath, body, 0o600); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "zip", "zip or pdf")
	cmd.Flags().StringVar(&outPath, "out", "", "output path (default proof-<id>.<format>)")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var flags clientFlags
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "audit <decision_id>",
		Short: "List audit entries, newest first",
		Args:  exactlyOne("decision_id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return usageError{msg: "limit must not be negative"}
			}
			path := "/v1/decisions/" + args[0] + "/audit"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			body, status, err := flags.get(path)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("audit failed: %s", strings.TrimSpace(string(body)))
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				_, _ = out.Write(body)
				return nil
			}
			var payload struct {
				Entries []types.AuditEntry `json:"entries"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			for _, e := range payload.Entries {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n", e.Seq, e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), e.Action, e.Actor.ID, e.Details)
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "max entries (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print raw JSON response")
	return cmd
}

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Workflow policy tools",
		RunE: func(*cobra.Command, []string) error {
			return usageError{msg: "policy requires a subcommand"}
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "lint <policy_path>",
		Short: "Parse and validate a workflow policy",
		Args:  exactlyOne("policy_path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := policy.LoadPolicy(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok policy_id=%s policy_hash=%s\n", loaded.Policy.PolicyID, loaded.Hash)
			return nil
		},
	})
	return cmd
}

func httpGet(client *http.Client, url string, token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}
