package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vidaudit/internal/audit"
)

func TestParseJUnitXMLPassed(t *testing.T) {
	data := []byte(`<testsuite name="checkout">
		<testcase name="test_checkout" time="41.2"/>
	</testsuite>`)

	outcome, err := ParseJUnitXML(data)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomePassed, outcome.Status)
	assert.Equal(t, "test_checkout", outcome.Name)
	require.Len(t, outcome.Assertions, 1)
	assert.Equal(t, audit.OutcomePassed, outcome.Assertions[0].Status)
}

func TestParseJUnitXMLFailure(t *testing.T) {
	data := []byte(`<testsuites>
		<testsuite name="checkout">
			<testcase name="test_login"/>
			<testcase name="test_checkout">
				<failure message="cart total mismatch">expected 2 items</failure>
			</testcase>
		</testsuite>
	</testsuites>`)

	outcome, err := ParseJUnitXML(data)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeFailed, outcome.Status)
	assert.Equal(t, "cart total mismatch", outcome.Message)
	require.Len(t, outcome.Assertions, 2)
	assert.Equal(t, audit.OutcomePassed, outcome.Assertions[0].Status)
	assert.Equal(t, audit.OutcomeFailed, outcome.Assertions[1].Status)
	assert.Equal(t, "cart total mismatch", outcome.Assertions[1].Message)
}

func TestParseJUnitXMLError(t *testing.T) {
	data := []byte(`<testsuite>
		<testcase name="test_checkout">
			<error message="browser crashed"/>
		</testcase>
	</testsuite>`)

	outcome, err := ParseJUnitXML(data)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeError, outcome.Status)
	assert.Equal(t, "browser crashed", outcome.Message)
}

func TestParseJUnitXMLMalformed(t *testing.T) {
	_, err := ParseJUnitXML([]byte(`<testsuite><testcase`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseJUnitXML([]byte(`<testsuite name="empty"></testsuite>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseHTMLReport(t *testing.T) {
	tests := []struct {
		name string
		body string
		want audit.OutcomeStatus
	}{
		{
			name: "failed marker",
			body: `<html><body><div class="status">FAILED</div></body></html>`,
			want: audit.OutcomeFailed,
		},
		{
			name: "passed marker",
			body: `<html><body><span>Test PASSED in 41s</span></body></html>`,
			want: audit.OutcomePassed,
		},
		{
			name: "failed wins over passed",
			body: `<html><body><p>step 1 PASSED</p><p>step 2 FAILED</p></body></html>`,
			want: audit.OutcomeFailed,
		},
		{
			name: "no markers",
			body: `<html><body><p>report pending</p></body></html>`,
			want: audit.OutcomeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := ParseHTMLReport([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome.Status)
		})
	}
}

func TestLoadTestOutcome(t *testing.T) {
	dir := t.TempDir()

	xmlPath := filepath.Join(dir, "result.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(`<testsuite><testcase name="t"/></testsuite>`), 0o600))
	outcome, err := LoadTestOutcome(xmlPath)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomePassed, outcome.Status)

	txtPath := filepath.Join(dir, "result.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("ok"), 0o600))
	_, err = LoadTestOutcome(txtPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = LoadTestOutcome(filepath.Join(dir, "missing.xml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}
