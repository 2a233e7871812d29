package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/naveen246/kite/dberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScript(t *testing.T) {
	s, out := openSession(t)
	script := `
-- people keyed by name
create people

put people alice {"age": 25}
  -- indented comment
put people bob {"age": 30}
.begin
update people alice {"age": 90}
.commit
`
	require.NoError(t, RunScript(context.Background(), s, strings.NewReader(script)))

	got := handle(t, s, out, "scan people")
	assert.Contains(t, got, `{"age": 90}`)
	assert.Contains(t, got, `{"age": 30}`)
}

func TestRunScriptStopsAtFirstFailure(t *testing.T) {
	s, out := openSession(t)
	script := strings.Join([]string{
		"create people",
		"insert people alice 1",
		"insert people alice 2",
		"insert people bob 3",
	}, "\n")

	err := RunScript(context.Background(), s, strings.NewReader(script))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
	assert.ErrorIs(t, err, dberr.ErrKeyExists)

	assert.Contains(t, handle(t, s, out, ".count people"), "1 keys in people")
}

func TestRunScriptQuit(t *testing.T) {
	s, out := openSession(t)
	script := "create people\n.quit\nbogus statement\n"

	require.NoError(t, RunScript(context.Background(), s, strings.NewReader(script)))
	assert.Contains(t, handle(t, s, out, ".tables"), "people")
}
