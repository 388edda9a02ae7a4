// Command aegisctl validates policy files and evaluates checks against them
// offline, using an in-memory engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/extension"
	"github.com/xraph/aegis/policyfile"
	"github.com/xraph/aegis/store/memory"
)

// errUsage marks errors caused by bad invocation.
var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load(".env")

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: aegisctl <command> [flags]

Commands:
  validate <file>...   Check policy files for structural errors
  check                Evaluate one request against a policy file
  effective            List the permissions a user holds
  roles                List the roles a user holds, or every role

Flags shared by check, effective and roles:
  --policy string      policy file (default: $AEGIS_POLICY_FILE)
  --json               print JSON instead of text

Environment is also read from ./.env when present.
`)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command", errUsage)
	}
	switch args[0] {
	case "validate":
		return runValidate(args[1:], out)
	case "check":
		return runCheck(ctx, args[1:], out)
	case "effective":
		return runEffective(ctx, args[1:], out)
	case "roles":
		return runRoles(ctx, args[1:], out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func runValidate(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: validate needs at least one file", errUsage)
	}
	var failed int
	for _, path := range args {
		if _, err := policyfile.Load(path); err != nil {
			fmt.Fprintf(out, "FAIL %s\n  %s\n", path, strings.ReplaceAll(err.Error(), "\n", "\n  "))
			failed++
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d policy files invalid", failed, len(args))
	}
	return nil
}

// common holds the flags shared by the evaluating commands.
type common struct {
	policy  string
	user    string
	asJSON  bool
	verbose bool
}

func (c *common) addFlags(fs *pflag.FlagSet) {
	cfg, _ := extension.ConfigFromEnv()
	fs.StringVar(&c.policy, "policy", cfg.PolicyFile, "policy file to load")
	fs.StringVar(&c.user, "user", "", "user to evaluate")
	fs.BoolVar(&c.asJSON, "json", false, "print JSON")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log engine activity to stderr")
}

// engine builds an in-memory engine from the policy file. The built-in
// catalog is always seeded so files can reference it.
func (c *common) engine(ctx context.Context) (*aegis.Engine, error) {
	if c.policy == "" {
		return nil, fmt.Errorf("%w: --policy is required", errUsage)
	}
	f, err := policyfile.Load(c.policy)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	eng, err := aegis.NewEngine(
		aegis.WithStore(memory.New()),
		aegis.WithLogger(logger),
		aegis.WithConfig(aegis.Config{LogDecisions: c.verbose}),
	)
	if err != nil {
		return nil, err
	}
	if err := eng.SeedDefaults(ctx); err != nil {
		return nil, err
	}
	if _, err := policyfile.Apply(ctx, eng, f); err != nil {
		return nil, fmt.Errorf("%s: %w", c.policy, err)
	}
	return eng, nil
}

func (c *common) print(out io.Writer, v any, text func()) error {
	if c.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func runCheck(ctx context.Context, args []string, out io.Writer) error {
	var (
		c        common
		action   string
		resource string
		attrs    map[string]string
	)
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	c.addFlags(fs)
	fs.StringVar(&action, "action", "", "action to check, e.g. view")
	fs.StringVar(&resource, "resource", "", "resource module, e.g. cards")
	fs.StringToStringVar(&attrs, "attr", nil, "constraint attribute as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if action == "" {
		return fmt.Errorf("%w: --action is required", errUsage)
	}

	eng, err := c.engine(ctx)
	if err != nil {
		return err
	}

	req := &aegis.CheckRequest{UserID: c.user, Action: action, Resource: resource}
	if len(attrs) > 0 {
		req.Context = make(map[string]any, len(attrs))
		for k, v := range attrs {
			req.Context[k] = v
		}
	}
	res, err := eng.Check(ctx, req)
	if err != nil {
		return err
	}
	if err := c.print(out, res, func() {
		verdict := "DENY"
		if res.Allowed {
			verdict = "ALLOW"
		}
		fmt.Fprintf(out, "%s %s (%s)\n", verdict, res.Permission, res.Decision)
		fmt.Fprintf(out, "  %s\n", res.Reason)
		for _, m := range res.MatchedBy {
			fmt.Fprintf(out, "  role %s: %s %s\n", m.RoleSlug, m.Permission, m.Reason)
		}
	}); err != nil {
		return err
	}
	if !res.Allowed {
		return aegis.ErrAccessDenied
	}
	return nil
}

func runEffective(ctx context.Context, args []string, out io.Writer) error {
	var c common
	fs := pflag.NewFlagSet("effective", pflag.ContinueOnError)
	c.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if c.user == "" {
		return fmt.Errorf("%w: --user is required", errUsage)
	}

	eng, err := c.engine(ctx)
	if err != nil {
		return err
	}
	slugs, err := eng.EffectivePermissions(ctx, c.user)
	if err != nil {
		return err
	}
	return c.print(out, slugs, func() {
		for _, s := range slugs {
			fmt.Fprintln(out, s)
		}
	})
}

type roleRow struct {
	Slug   string `json:"slug"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func runRoles(ctx context.Context, args []string, out io.Writer) error {
	var c common
	fs := pflag.NewFlagSet("roles", pflag.ContinueOnError)
	c.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	eng, err := c.engine(ctx)
	if err != nil {
		return err
	}

	var rows []roleRow
	if c.user != "" {
		roles, err := eng.ActiveRoles(ctx, c.user)
		if err != nil {
			return err
		}
		for _, r := range roles {
			rows = append(rows, roleRow{Slug: r.Slug, Type: string(r.Type), Active: r.Active})
		}
	} else {
		roles, err := eng.ListRoles(ctx, nil)
		if err != nil {
			return err
		}
		for _, r := range roles {
			rows = append(rows, roleRow{Slug: r.Slug, Type: string(r.Type), Active: r.Active})
		}
	}
	slices.SortFunc(rows, func(a, b roleRow) int { return strings.Compare(a.Slug, b.Slug) })
	return c.print(out, rows, func() {
		for _, r := range rows {
			state := ""
			if !r.Active {
				state = " (inactive)"
			}
			fmt.Fprintf(out, "%-24s %s%s\n", r.Slug, r.Type, state)
		}
	})
}
