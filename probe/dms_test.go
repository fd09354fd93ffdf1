package probe

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckins struct {
	last *time.Time
}

func (f *fakeCheckins) LastCheckin(ctx context.Context, checkID int64) (*time.Time, error) {
	return f.last, nil
}

func dmsTarget(t *testing.T, staleAfter string) Target {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"stale_after": staleAfter})
	require.NoError(t, err)
	return Target{CheckID: 7, Spec: raw}
}

func TestDeadManSwitch(t *testing.T) {
	reader := &fakeCheckins{}
	p := NewDeadManSwitch(reader)

	res, err := p.Probe(context.Background(), dmsTarget(t, "1h"))
	require.NoError(t, err)
	assert.Equal(t, Critical, res.Status, "no heartbeat ever means down")

	recent := time.Now().Add(-10 * time.Minute)
	reader.last = &recent
	res, err = p.Probe(context.Background(), dmsTarget(t, "1h"))
	require.NoError(t, err)
	assert.Equal(t, OK, res.Status)

	old := time.Now().Add(-2 * time.Hour)
	reader.last = &old
	res, err = p.Probe(context.Background(), dmsTarget(t, "1h"))
	require.NoError(t, err)
	assert.Equal(t, Critical, res.Status)
}

func TestDeadManSwitchRequiresStaleAfter(t *testing.T) {
	p := NewDeadManSwitch(&fakeCheckins{})
	_, err := p.Probe(context.Background(), Target{CheckID: 7, Spec: json.RawMessage(`{}`)})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestParseWhoisDateLayouts(t *testing.T) {
	for _, value := range []string{
		"2027-03-01T00:00:00Z",
		"2027-03-01 00:00:00",
		"2027-03-01",
		"01-Mar-2027",
	} {
		parsed, err := ParseWhoisDate(value)
		require.NoError(t, err, value)
		assert.Equal(t, 2027, parsed.Year())
	}

	_, err := ParseWhoisDate("next spring")
	assert.Error(t, err)
}
