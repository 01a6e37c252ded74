package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/folio/internal/profile"
)

// Runner executes an external command and returns its captured output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// CLI uploads with the aws command line tool. Any output on stderr counts
// as failure.
type CLI struct {
	runner Runner
	logger *slog.Logger
}

func NewCLI(runner Runner, logger *slog.Logger) *CLI {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{runner: runner, logger: logger}
}

type cliStep struct {
	name string
	args []string
}

func (c *CLI) Upload(ctx context.Context, p profile.Profile, req Request) (Result, error) {
	root := req.FS.Root()
	if root == "" {
		return Result{}, failed("aws cli needs an on-disk state directory")
	}
	local := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }
	dest := func(suffix string) string {
		return "s3://" + p.AWS.Bucket + "/" + path.Join(p.AWS.Prefix, suffix) + "/"
	}

	var out strings.Builder
	steps := []cliStep{
		{"notes", []string{"s3", "cp", local(req.StagedDir), dest("notes"), "--recursive"}},
		{"mapping", []string{"s3", "cp", local(req.MappingDir), dest("static/mapping"), "--recursive"}},
	}
	if req.ContentIndex != "" {
		if req.FS.Exists(req.ContentIndex) {
			steps = append(steps, cliStep{"content index", []string{"s3", "cp", local(req.ContentIndex), dest("static/content") + "contentIndex.json"}})
		} else {
			c.logger.Warn("upload: content index missing, skipped", slog.String("path", req.ContentIndex))
		}
	}

	res := Result{}
	for _, step := range steps {
		stdout, err := c.run(ctx, p, step.args...)
		out.WriteString(stdout)
		if err != nil {
			res.Output = out.String()
			return res, failed("%s: %v", step.name, err)
		}
		res.Uploaded++
	}

	if req.Invalidate {
		stdout, err := c.Invalidate(ctx, p)
		out.WriteString(stdout)
		if err != nil {
			c.logger.Error("upload: invalidation failed", slog.String("error", err.Error()))
			fmt.Fprintf(&out, "invalidation failed: %v\n", err)
		} else {
			res.Invalidated = true
		}
	}
	res.Output = out.String()
	return res, nil
}

// Invalidate creates an edge cache invalidation of every path.
func (c *CLI) Invalidate(ctx context.Context, p profile.Profile) (string, error) {
	if p.AWS.DistributionID == "" {
		return "", fmt.Errorf("no distribution id configured")
	}
	return c.run(ctx, p, "cloudfront", "create-invalidation",
		"--distribution-id", p.AWS.DistributionID, "--paths", "/*")
}

func (c *CLI) run(ctx context.Context, p profile.Profile, args ...string) (string, error) {
	if p.AWS.Profile != "" {
		args = append(args, "--profile", p.AWS.Profile)
	}
	if p.AWS.Endpoint != "" && args[0] == "s3" {
		args = append(args, "--endpoint-url", p.AWS.Endpoint)
	}
	bin := strings.TrimSpace(p.AWS.CLIPath)
	if bin == "" {
		bin = "aws"
	}

	c.logger.Debug("upload: exec", slog.String("cmd", bin+" "+strings.Join(args, " ")))
	stdout, stderr, err := c.runner.Run(ctx, bin, args...)
	if err != nil {
		if stderr != "" {
			return stdout, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))
		}
		return stdout, err
	}
	if strings.TrimSpace(stderr) != "" {
		return stdout, fmt.Errorf("%s", strings.TrimSpace(stderr))
	}
	return stdout, nil
}
