package patch

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/uptimeflare/monitorsync/pkg/types"
)

const issueTemplate = `name: Monitor issue
description: Report a problem with a monitored service
labels: ["incident"]
body:
  - type: markdown
    attributes:
      value: |
        Thanks for reporting! Pick the affected monitor below.
  - type: dropdown
    id: monitor
    attributes:
      label: Affected monitor
      description: Which monitor is affected?
      options:
        - label: "stale_monitor (Removed Monitor)"
          value: "stale_monitor"
        - label: "All monitors"
          value: "all"
    validations:
      required: true
  - type: textarea
    id: details
    attributes:
      label: Details
`

var scenarioEntries = []types.MonitorEntry{
	{ID: "foo_monitor", Name: "My API Monitor"},
	{ID: "test_tcp_monitor", Name: "Example TCP Monitor"},
}

func TestPatchScenario(t *testing.T) {
	got, region, err := New().Patch(issueTemplate, scenarioEntries)
	require.NoError(t, err)

	want := strings.Replace(issueTemplate, `        - label: "stale_monitor (Removed Monitor)"
          value: "stale_monitor"
        - label: "All monitors"
          value: "all"
`, `        - label: "foo_monitor (My API Monitor)"
          value: "foo_monitor"
        - label: "test_tcp_monitor (Example TCP Monitor)"
          value: "test_tcp_monitor"
        - label: "All monitors"
          value: "all"
`, 1)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("patched template mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, "      ", region.Indent)
	require.Equal(t, "\n", region.Newline)
	require.True(t, strings.HasPrefix(issueTemplate[region.End:], "    validations:"))
	require.Equal(t, 3, strings.Count(got, "- label:"), "two monitors plus the all option")
}

func TestPatchLeavesOutsideRegionUntouched(t *testing.T) {
	region, err := New().Locate(issueTemplate)
	require.NoError(t, err)

	got, _, err := New().Patch(issueTemplate, scenarioEntries)
	require.NoError(t, err)

	prefix := issueTemplate[:region.Start]
	suffix := issueTemplate[region.End:]
	require.True(t, strings.HasPrefix(got, prefix))
	require.True(t, strings.HasSuffix(got, suffix))
	require.True(t, strings.HasSuffix(prefix, "      options:\n"))
}

func TestPatchIsIdempotent(t *testing.T) {
	templates := map[string]string{
		"issue form":                    issueTemplate,
		"blank line terminator":         "options:\n  - label: \"x\"\n    value: \"x\"\n\n# trailing comment\n",
		"marker at end without newline": "title: Report\noptions:",
		"body at end without newline":   "options:\n  - label: \"x\"\n    value: \"x\"",
		"empty body before sibling":     "  options:\n  required: true\n",
		"compact sequence":              "options:\n- label: \"x\"\n  value: \"x\"\nnext: true\n",
		"crlf":                          "body:\r\n  options:\r\n    - label: \"x\"\r\n      value: \"x\"\r\n  required: true\r\n",
		"crlf marker at end":            "options:\r",
	}
	entries := []types.MonitorEntry{
		{ID: "a", Name: "Alpha"},
		{ID: "b", Name: `Beta "quoted" \ slash`},
	}

	for name, tmpl := range templates {
		t.Run(name, func(t *testing.T) {
			p := New()
			once, _, err := p.Patch(tmpl, entries)
			require.NoError(t, err)
			twice, _, err := p.Patch(once, entries)
			require.NoError(t, err)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Fatalf("second patch changed the document (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestPatchCompactSequenceReplacesItems(t *testing.T) {
	tmpl := "options:\n- label: \"old\"\n  value: \"old\"\nnext: true\n"
	got, _, err := New().Patch(tmpl, []types.MonitorEntry{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	require.Equal(t, "options:\n  - label: \"a (A)\"\n    value: \"a\"\n  - label: \"All monitors\"\n    value: \"all\"\nnext: true\n", got)
}

func TestPatchKeepsCRLF(t *testing.T) {
	tmpl := "options:\r\n  - label: \"x\"\r\n    value: \"x\"\r\nnext: 1\r\n"
	got, region, err := New().Patch(tmpl, []types.MonitorEntry{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	require.Equal(t, "\r\n", region.Newline)
	require.Equal(t, "options:\r\n  - label: \"a (A)\"\r\n    value: \"a\"\r\n  - label: \"All monitors\"\r\n    value: \"all\"\r\nnext: 1\r\n", got)
}

func TestPatchMarkerAtEndOfText(t *testing.T) {
	got, _, err := New().Patch("title: x\noptions:", []types.MonitorEntry{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	require.Equal(t, "title: x\noptions:\n  - label: \"a (A)\"\n    value: \"a\"\n  - label: \"All monitors\"\n    value: \"all\"\n", got)
}

func TestPatchMissingMarker(t *testing.T) {
	tmpl := "name: Bug report\nbody:\n  - type: input\n    attributes:\n      label: Version\n      optionsList: nope\n"
	got, _, err := New().Patch(tmpl, scenarioEntries)
	require.ErrorIs(t, err, ErrMissingTarget)
	require.Equal(t, tmpl, got)

	var targetErr *MissingTargetError
	require.ErrorAs(t, err, &targetErr)
	require.Equal(t, "options marker not found", targetErr.Reason)
	require.Equal(t, DefaultMarker, targetErr.Marker)
}

func TestPatchAnchorSelectsField(t *testing.T) {
	tmpl := `body:
  - type: dropdown
    id: severity
    attributes:
      options:
        - low
        - high
  - type: dropdown
    id: monitor
    attributes:
      options:
        - placeholder
`
	got, _, err := New(WithAnchor("id: monitor")).Patch(tmpl, []types.MonitorEntry{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	require.Contains(t, got, "      options:\n        - low\n        - high\n")
	require.True(t, strings.HasSuffix(got, "      options:\n        - label: \"a (A)\"\n          value: \"a\"\n        - label: \"All monitors\"\n          value: \"all\"\n"))

	_, _, err = New(WithAnchor("id: missing")).Patch(tmpl, nil)
	require.ErrorIs(t, err, ErrMissingTarget)
}

func TestRenderLayout(t *testing.T) {
	p := New(WithLabelFormat("{name} [{id}]"), WithAllOption("Every monitor", "__all__"))
	got := p.Render(scenarioEntries, "  ")
	require.Equal(t, `  - label: "My API Monitor [foo_monitor]"
    value: "foo_monitor"
  - label: "Example TCP Monitor [test_tcp_monitor]"
    value: "test_tcp_monitor"
  - label: "Every monitor"
    value: "__all__"`, got)
	require.Equal(t, "__all__", p.Sentinel())
}

func TestRenderEmptyCollectionKeepsAllOption(t *testing.T) {
	got := New().Render(nil, "")
	require.Equal(t, "- label: \"All monitors\"\n  value: \"all\"", got)
}

func TestPatchedTemplateParsesAsYAML(t *testing.T) {
	entries := []types.MonitorEntry{
		{ID: "quotes", Name: `He said "hi"`},
		{ID: "colon", Name: "a: b # not a comment"},
		{ID: "emoji", Name: "🌐 Public"},
		{ID: "backslash", Name: `C:\path\to`},
	}
	got, _, err := New().Patch(issueTemplate, entries)
	require.NoError(t, err)

	var doc struct {
		Body []struct {
			Attributes struct {
				Options []struct {
					Label string `yaml:"label"`
					Value string `yaml:"value"`
				} `yaml:"options"`
			} `yaml:"attributes"`
		} `yaml:"body"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(got), &doc))
	require.Len(t, doc.Body, 3)

	options := doc.Body[1].Attributes.Options
	require.Len(t, options, len(entries)+1)
	for i, entry := range entries {
		require.Equal(t, entry.ID, options[i].Value)
		require.Equal(t, entry.ID+" ("+entry.Name+")", options[i].Label)
	}
	require.Equal(t, DefaultAllValue, options[len(entries)].Value)
}

func TestSentinelDistinctFromRealIDs(t *testing.T) {
	p := New()
	collection := types.MonitorCollection(scenarioEntries)
	require.False(t, collection.Contains(p.Sentinel()))
}

func TestPatchMarkerWithTrailingComment(t *testing.T) {
	tmpl := "body:\n  attributes:\n    options: # generated by monitorsync\n      - label: \"x\"\n        value: \"x\"\n  validations: {}\n"
	entries := []types.MonitorEntry{{ID: "a", Name: "A"}}

	once, region, err := New().Patch(tmpl, entries)
	require.NoError(t, err)
	require.Equal(t, "    ", region.Indent)
	require.Equal(t, "body:\n  attributes:\n    options: # generated by monitorsync\n      - label: \"a (A)\"\n        value: \"a\"\n      - label: \"All monitors\"\n        value: \"all\"\n  validations: {}\n", once)

	twice, _, err := New().Patch(once, entries)
	require.NoError(t, err)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second patch changed the document (-once +twice):\n%s", diff)
	}

	crlf := "options: # keep\r\n  - label: \"x\"\r\n    value: \"x\"\r\n"
	got, region, err := New().Patch(crlf, entries)
	require.NoError(t, err)
	require.Equal(t, "\r\n", region.Newline)
	require.True(t, strings.HasPrefix(got, "options: # keep\r\n  - label: \"a (A)\"\r\n"))
}

func TestMarkerRequiresCommentSeparator(t *testing.T) {
	_, _, err := New().Patch("options:#notacomment\n  - x\n", nil)
	require.ErrorIs(t, err, ErrMissingTarget)
}

func TestPatchSkipsMarkerInsideBlockScalar(t *testing.T) {
	tmpl := `body:
  - type: markdown
    attributes:
      value: |
        Pick one of the following
        options:
          - the affected monitor

        options:
  - type: dropdown
    attributes:
      options:
        - label: "old"
          value: "old"
      description: >-
        options:
`
	got, region, err := New().Patch(tmpl, []types.MonitorEntry{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	require.Equal(t, "      ", region.Indent)
	require.Contains(t, got, "        options:\n          - the affected monitor\n\n        options:\n")
	require.Contains(t, got, "      options:\n        - label: \"a (A)\"\n          value: \"a\"\n        - label: \"All monitors\"\n          value: \"all\"\n      description: >-\n")
	require.NotContains(t, got, `"old"`)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(got), &doc))
}

func TestPatchOnlyBlockScalarMarkerIsMissing(t *testing.T) {
	tmpl := "body:\n  - attributes:\n      value: |\n        options:\n          - x\n"
	got, _, err := New().Patch(tmpl, scenarioEntries)
	require.ErrorIs(t, err, ErrMissingTarget)
	require.Equal(t, tmpl, got)
}

func TestRenderReplacesInvalidUTF8(t *testing.T) {
	got := New().Render([]types.MonitorEntry{{ID: "b", Name: "bad\xffutf"}}, "")
	require.Contains(t, got, "- label: \"b (bad�utf)\"")

	var options []struct {
		Label string `yaml:"label"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(got), &options))
	require.Equal(t, "b (bad�utf)", options[0].Label)
}
