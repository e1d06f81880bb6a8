package artifact

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/fyrsmithlabs/vidaudit/internal/audit"
)

// junitTestCase mirrors a <testcase> element of a JUnit report.
type junitTestCase struct {
	Name    string        `xml:"name,attr"`
	Failure *junitFailure `xml:"failure"`
	Error   *junitFailure `xml:"error"`
}

// junitFailure mirrors a <failure> or <error> child element.
type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// junitDocument collects testcase elements regardless of testsuite nesting.
type junitDocument struct {
	TestCases []junitTestCase `xml:"testcase"`
	Suites    []struct {
		TestCases []junitTestCase `xml:"testcase"`
	} `xml:"testsuite"`
}

// LoadTestOutcome parses a test result file into a TestOutcome. JUnit XML and
// HTML reports are supported, keyed by file extension.
func LoadTestOutcome(path string) (audit.TestOutcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audit.TestOutcome{}, fmt.Errorf("%w: reading test output %s: %v", ErrMalformed, path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return ParseJUnitXML(data)
	case ".html", ".htm":
		return ParseHTMLReport(data)
	default:
		return audit.TestOutcome{}, fmt.Errorf("%w: unsupported test output format %q", ErrMalformed, filepath.Ext(path))
	}
}

// ParseJUnitXML extracts the overall status and per-assertion results from a
// JUnit XML report. Any testcase with a <failure> marks the outcome failed;
// any testcase with an <error> marks it errored; failure wins when both occur
// across different cases.
func ParseJUnitXML(data []byte) (audit.TestOutcome, error) {
	var doc junitDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return audit.TestOutcome{}, fmt.Errorf("%w: junit xml: %v", ErrMalformed, err)
	}

	cases := doc.TestCases
	for _, suite := range doc.Suites {
		cases = append(cases, suite.TestCases...)
	}
	if len(cases) == 0 {
		return audit.TestOutcome{}, fmt.Errorf("%w: junit xml contains no testcase elements", ErrMalformed)
	}

	outcome := audit.TestOutcome{Status: audit.OutcomePassed}
	for _, tc := range cases {
		ar := audit.AssertionResult{Name: tc.Name, Status: audit.OutcomePassed}
		switch {
		case tc.Failure != nil:
			ar.Status = audit.OutcomeFailed
			ar.Message = tc.Failure.Message
			outcome.Status = audit.OutcomeFailed
			if outcome.Message == "" {
				outcome.Message = tc.Failure.Message
			}
		case tc.Error != nil:
			ar.Status = audit.OutcomeError
			ar.Message = tc.Error.Message
			if outcome.Status != audit.OutcomeFailed {
				outcome.Status = audit.OutcomeError
			}
			if outcome.Message == "" {
				outcome.Message = tc.Error.Message
			}
		}
		if outcome.Name == "" {
			outcome.Name = tc.Name
		}
		outcome.Assertions = append(outcome.Assertions, ar)
	}
	return outcome, nil
}

// ParseHTMLReport scans an HTML test report for PASSED/FAILED markers in its
// text content. A report with neither marker yields OutcomeUnknown, which is
// legal input, not a parse failure.
func ParseHTMLReport(data []byte) (audit.TestOutcome, error) {
	root, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return audit.TestOutcome{}, fmt.Errorf("%w: html report: %v", ErrMalformed, err)
	}

	var failed, passed bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if strings.Contains(n.Data, "FAILED") {
				failed = true
			}
			if strings.Contains(n.Data, "PASSED") {
				passed = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	switch {
	case failed:
		return audit.TestOutcome{Status: audit.OutcomeFailed}, nil
	case passed:
		return audit.TestOutcome{Status: audit.OutcomePassed}, nil
	default:
		return audit.TestOutcome{Status: audit.OutcomeUnknown}, nil
	}
}
