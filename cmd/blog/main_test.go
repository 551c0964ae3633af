package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johntipper/blog/plugins/netlifycms"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cli := CLI{Globals: Globals{Stdout: &out, Stderr: io.Discard}}
	parser, err := kong.New(&cli,
		kong.Name("blog"),
		kong.Vars{"version": version},
		kong.Exit(func(code int) { t.Fatalf("unexpected exit %d", code) }),
	)
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	if err != nil {
		return "", err
	}
	err = ctx.Run(&cli.Globals)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "blog dev\n", out)
}

func TestNewValidateBuild(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "my-blog")

	out, err := run(t, "new", dir, "--site-url", "https://blog.example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "created "+filepath.Join(dir, "config.yaml"))

	cfgPath := filepath.Join(dir, "config.yaml")
	out, err = run(t, "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, cfgPath+": OK")
	assert.Contains(t, out, "1. gatsby-plugin-sitemap")
	assert.Contains(t, out, "4. gatsby-plugin-netlify-cms")

	out, err = run(t, "build", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "into "+filepath.Join(dir, "public"))
	assert.FileExists(t, filepath.Join(dir, "public", "hello-world", "index.html"))
	assert.FileExists(t, filepath.Join(dir, "public", "sitemap.xml"))

	_, err = run(t, "new", dir)
	assert.ErrorContains(t, err, "already exists")
}

func TestConvert(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	_, err := run(t, "new", dir)
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	target := filepath.Join(dir, "config.json")
	out, err := run(t, "convert", "--config", cfgPath, target)
	require.NoError(t, err)
	assert.Equal(t, "wrote "+target+"\n", out)

	out, err = run(t, "validate", "--config", target)
	require.NoError(t, err)
	assert.Contains(t, out, "4. gatsby-plugin-netlify-cms")

	_, err = run(t, "convert", "--config", cfgPath, target)
	assert.ErrorContains(t, err, "already exists")
	_, err = run(t, "convert", "--config", cfgPath, target, "--force")
	assert.NoError(t, err)
}

func TestValidateReportsErrors(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("siteMetadata:\n  siteUrl: nope\nplugins:\n  - gatsby-plugin-offline\n"), 0o644))

	_, err := run(t, "validate", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "siteMetadata.siteUrl")
}

func TestPlan(t *testing.T) {
	out, err := run(t, "plan",
		"--domain-name", "johntipper.org",
		"--api-lambda-path", "api.zip",
		"--target-account", "123456789012",
		"--region", "eu-west-2",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "name: LambdaEdgeCloudFrontRewriteStack")
	assert.Contains(t, out, "bucketName: website-123456789012")
}

func TestPlanInvalidAccount(t *testing.T) {
	_, err := run(t, "plan",
		"--domain-name", "johntipper.org",
		"--api-lambda-path", "api.zip",
		"--target-account", "abc",
		"--region", "eu-west-2",
	)
	assert.ErrorContains(t, err, "12 digit")
}

func TestServeEnvPrefersFlags(t *testing.T) {
	t.Setenv(netlifycms.EnvSessionSecret, "from-env")
	c := &ServeCmd{AdminPassword: "from-flag"}

	v, ok := c.env(netlifycms.EnvAdminPassword)
	assert.True(t, ok)
	assert.Equal(t, "from-flag", v)

	v, ok = c.env(netlifycms.EnvSessionSecret)
	assert.True(t, ok)
	assert.Equal(t, "from-env", v)
}
