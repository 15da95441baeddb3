package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawLineSeparators(t *testing.T) {
	assert.Equal(t, "\"x\u2028\"", string(rawLineSeparators([]byte(`"x\u2028"`))))
	assert.Equal(t, `"x\\u2028"`, string(rawLineSeparators([]byte(`"x\\u2028"`))))
	assert.Equal(t, `"x\\`+"\u2029\"", string(rawLineSeparators([]byte(`"x\\\u2029"`))))
	assert.Equal(t, `"plain"`, string(rawLineSeparators([]byte(`"plain"`))))
}

func TestQuoteString(t *testing.T) {
	b, err := QuoteString("a<b>\u2028")
	require.NoError(t, err)
	assert.Equal(t, "\"a<b>\u2028\"", string(b))
}

func TestEntriesMarshalJSONKeepsGroupOrder(t *testing.T) {
	var e Entries
	e.Set("zeta", nil)
	e.Append("alpha", Entry{Date: 1, Tool: "go"})

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Regexp(t, `^\{"zeta":\[\],"alpha":\[\{"commit":`, string(b))

	var back Entries
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []string{"zeta", "alpha"}, back.Names())
	assert.Equal(t, int64(1), back.Get("alpha")[0].Date)
}

func TestUnmarshalKeepsSourceOfUneditedRuns(t *testing.T) {
	src := `{"g":[{"commit":{"author":{"email":null,"name":"a"},"committer":{"name":"c"},"id":"x","message":"m","timestamp":"t","url":"u"},"date":5,"tool":"go","benches":[]}]}`

	var e Entries
	require.NoError(t, json.Unmarshal([]byte(src), &e))

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, src, string(b))

	runs := e.Get("g")
	runs[0].Date = 6
	b, err = json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"email":null`)
}
