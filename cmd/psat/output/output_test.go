package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Table {
	t := Table{Columns: []string{"tab_id", "url"}}
	t.Append(1, "https://a.test/")
	t.Append(2, "https://b.test/,x")
	return t
}

func TestHumanFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, HumanFormatter{}.Format(&buf, sample()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TAB_ID"))
	assert.Contains(t, lines[1], "https://a.test/")

	buf.Reset()
	require.NoError(t, HumanFormatter{}.Format(&buf, Table{Columns: []string{"x"}}))
	assert.Equal(t, "(none)\n", buf.String())
}

func TestJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, JSONFormatter{}.Format(&buf, sample()))
	var parsed []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	require.Len(t, parsed, 2)
	assert.Equal(t, "2", parsed[1]["tab_id"])
}

func TestCSVFormatQuotes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, CSVFormatter{}.Format(&buf, sample()))
	assert.Equal(t, "tab_id,url\n1,https://a.test/\n2,\"https://b.test/,x\"\n", buf.String())
}

func TestGetFormatter(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "human", "json", "csv"} {
		f, err := GetFormatter(name)
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}
	_, err := GetFormatter("xml")
	assert.Error(t, err)
}
