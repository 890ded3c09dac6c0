package main

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
swagger: "2.0"
paths:
  /posts:
    get:
      parameters:
        - name: cursor
          in: query
      responses:
        "200": {}
        "400": {}
    post:
      responses:
        "201": {}
  /posts/{id}/like:
    post:
      responses:
        "200": {}
`

func TestCompare(t *testing.T) {
	base, err := parseDoc([]byte(baseYAML))
	require.NoError(t, err)

	revision, err := parseDoc([]byte(`{
		"paths": {
			"/posts": {
				"get": {
					"parameters": [{"name": "cursor", "in": "query", "required": true}],
					"responses": {"200": {}}
				}
			}
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"new required parameter: GET /posts -> query:cursor",
		"removed operation: POST /posts",
		"removed path: /posts/{id}/like",
		"removed response code: GET /posts -> 400",
	}, compare(base, revision))

	assert.Empty(t, compare(base, base))
}

func TestParseDocRequiresPaths(t *testing.T) {
	_, err := parseDoc([]byte(`swagger: "2.0"`))
	assert.Error(t, err)
}

func TestRunAgainstEmbeddedDocs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML), 0o600))

	var out bytes.Buffer
	require.NoError(t, run(path, "", &out))
	assert.Contains(t, out.String(), "passed")
}

func TestSourcesAreGofmtted(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		src, err := os.ReadFile(name)
		require.NoError(t, err)
		formatted, err := format.Source(src)
		require.NoError(t, err, name)
		assert.Equal(t, string(formatted), string(src), "%s is not gofmt-formatted", name)
	}
}
