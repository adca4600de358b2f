package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordCommand(t *testing.T) {
	out, err := execute(t, "hash-password", "s3cret")
	require.NoError(t, err)
	h := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("s3cret")))

	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetIn(strings.NewReader("from-stdin\n"))
	root.SetArgs([]string{"hash-password"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(buf.String())), []byte("from-stdin")))

	root = newRootCommand()
	root.SetOut(&buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs([]string{"hash-password"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestNewAPIClientUserFlag(t *testing.T) {
	_, err := newAPIClient(&GlobalFlags{APIUrl: "http://127.0.0.1:1/api", User: "nocolon"})
	assert.Error(t, err)
	c, err := newAPIClient(&GlobalFlags{APIUrl: "http://127.0.0.1:1/api", User: "ops:pw"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
